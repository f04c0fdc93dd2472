package logic

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// Registry maps condition type names to evaluators.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Evaluator
	log   log.Log
}

// NewRegistry returns a registry with the built-in condition types.
func NewRegistry(logger log.Log) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	r := &Registry{types: make(map[string]Evaluator), log: logger}
	RegisterBuiltins(r)
	return r
}

// Register adds or replaces a condition type.
func (r *Registry) Register(name string, ev Evaluator) {
	r.mu.Lock()
	r.types[name] = ev
	r.mu.Unlock()
}

// Lookup returns the evaluator for a type.
func (r *Registry) Lookup(name string) (Evaluator, bool) {
	r.mu.RLock()
	ev, ok := r.types[name]
	r.mu.RUnlock()
	return ev, ok
}

// Names returns registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Evaluate evaluates c. An empty condition is true; an unknown type is false.
func (r *Registry) Evaluate(c Condition, env Env) bool {
	if c.Type == "" {
		return true
	}
	ev, ok := r.Lookup(c.Type)
	if !ok {
		r.log.Error("unsupported condition type", log.String("type", c.Type))
		return false
	}
	return ev.Evaluate(Context{Cond: c, Env: env, Registry: r})
}

// Sources lists what c depends on. Types that do not implement Sourcer
// contribute nothing and can only be polled.
func (r *Registry) Sources(c Condition) []Source {
	if c.Type == "" {
		return nil
	}
	ev, ok := r.Lookup(c.Type)
	if !ok {
		return nil
	}
	s, ok := ev.(Sourcer)
	if !ok {
		return nil
	}
	return s.Sources(Context{Cond: c, Registry: r})
}

// Subscribe calls fn whenever any source of c changes. It is all or nothing:
// on error every subscription created so far is cancelled.
func (r *Registry) Subscribe(c Condition, env Env, fn func()) ([]memory.Subscription, error) {
	sources := r.Sources(c)
	subs := make([]memory.Subscription, 0, len(sources))
	fail := func(err error) ([]memory.Subscription, error) {
		for _, s := range subs {
			_ = s.Cancel()
		}
		return nil, err
	}

	for _, src := range sources {
		switch {
		case src.Event != "":
			if env.Events == nil {
				return fail(fmt.Errorf("logic: condition %s needs an event bus", c.Type))
			}
			flag := EventFlag(src.Event)
			local := env.Local
			sub, err := env.Events.SubscribeTopic(env.Topic, src.Event, func(bus.Event) error {
				if local != nil {
					local.Set(flag, true)
				}
				fn()
				return nil
			})
			if err != nil {
				return fail(err)
			}
			subs = append(subs, sub)
		default:
			vars := env.Local
			if vars == nil {
				vars = env.Session
			}
			if vars == nil {
				return fail(fmt.Errorf("logic: condition %s needs working memory", c.Type))
			}
			sub, err := vars.OnChange(src.Var, fn)
			if err != nil {
				return fail(err)
			}
			subs = append(subs, sub)
			if env.Session != nil && env.Local != nil {
				sub, err = env.Session.OnChange(src.Var, fn)
				if err != nil {
					return fail(err)
				}
				subs = append(subs, sub)
			}
		}
	}
	return subs, nil
}

// Text renders c for humans.
func (r *Registry) Text(c Condition) string {
	if c.Type == "" {
		return "true"
	}
	ev, ok := r.Lookup(c.Type)
	if !ok {
		return c.Type
	}
	if t, ok := ev.(Texter); ok {
		return t.Text(Context{Cond: c, Registry: r})
	}
	return c.Type
}

// EventFlag is the working-memory key set when an observed event fires.
func EventFlag(event string) memory.Key {
	return memory.K("event." + event)
}

// lookupVar searches agent memory first, then session variables.
func lookupVar(env Env, name string) (any, bool) {
	key := memory.K(name)
	if env.Local != nil {
		if v, ok := env.Local.TryGet(key); ok {
			return v, true
		}
	}
	if env.Session != nil {
		if v, ok := env.Session.TryGet(key); ok {
			return v, true
		}
	}
	return nil, false
}
