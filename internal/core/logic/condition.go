package logic

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/memory"
)

// Condition is a decoded condition descriptor. Nested descriptors found under
// "condition" or "conditions" are decoded eagerly into Inner so evaluation never
// touches the raw authored form.
type Condition struct {
	Type   string
	Params map[string]any
	Inner  []Condition
}

// Vars is the variable storage a condition reads and subscribes to.
type Vars interface {
	TryGet(key memory.Key) (any, bool)
	Set(key memory.Key, value any)
	OnChange(key memory.Key, fn func()) (memory.Subscription, error)
}

// Env is everything a condition may consult while evaluating.
type Env struct {
	// Local is the agent working memory, searched first.
	Local Vars
	// Session holds session-wide variables used as a fallback.
	Session Vars
	Events  bus.EventBus
	// Topic scopes event subscriptions, normally the agent id.
	Topic string
}

// Source is something a condition's value depends on.
type Source struct {
	Var   memory.Key
	Event string
}

// Context is passed to an Evaluator.
type Context struct {
	Cond     Condition
	Env      Env
	Registry *Registry
}

// Evaluator implements one condition type.
type Evaluator interface {
	Evaluate(ctx Context) bool
}

// Sourcer is implemented by condition types that can be observed reactively.
type Sourcer interface {
	Sources(ctx Context) []Source
}

// Texter renders a condition for debugging and UI.
type Texter interface {
	Text(ctx Context) string
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx Context) bool

func (f EvaluatorFunc) Evaluate(ctx Context) bool { return f(ctx) }

var ErrBadCondition = errors.New("logic: malformed condition")

type rawCondition struct {
	Type string         `mapstructure:"type"`
	Rest map[string]any `mapstructure:",remain"`
}

// Decode converts an authored condition into a Condition. Accepted forms are a
// bare type name ("True"), a boolean, or a map with a "type" key.
func Decode(raw any) (Condition, error) {
	switch v := raw.(type) {
	case nil:
		return Condition{}, nil
	case Condition:
		return v, nil
	case string:
		return Condition{Type: v}, nil
	case bool:
		if v {
			return Condition{Type: "True"}, nil
		}
		return Condition{Type: "False"}, nil
	}

	var rc rawCondition
	if err := mapstructure.Decode(raw, &rc); err != nil {
		return Condition{}, fmt.Errorf("%w: %v", ErrBadCondition, err)
	}
	c := Condition{Type: rc.Type, Params: rc.Rest}

	if one, ok := c.Params["condition"]; ok {
		inner, err := Decode(one)
		if err != nil {
			return Condition{}, err
		}
		c.Inner = append(c.Inner, inner)
		delete(c.Params, "condition")
	}
	if many, ok := c.Params["conditions"]; ok {
		list, ok := many.([]any)
		if !ok {
			return Condition{}, fmt.Errorf("%w: %q conditions must be a list", ErrBadCondition, c.Type)
		}
		for i, item := range list {
			inner, err := Decode(item)
			if err != nil {
				return Condition{}, fmt.Errorf("%s[%d]: %w", c.Type, i, err)
			}
			c.Inner = append(c.Inner, inner)
		}
		delete(c.Params, "conditions")
	}
	return c, nil
}

// Param returns a string param, or "" when absent.
func (c Condition) Param(name string) string {
	s, _ := c.Params[name].(string)
	return s
}
