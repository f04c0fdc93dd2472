package actuator

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// Handler executes one step of an action. elapsed is the total time the
// action has been current, including this step. Returning StatusActive keeps
// it running.
type Handler func(ctx context.Context, a Action, elapsed time.Duration) Status

// Dispatcher drives queued actions through registered handlers, standing in
// for the effector systems of a host simulation.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      log.Log
}

// NewDispatcher returns a dispatcher with the stock "noop" and "timed" handlers.
func NewDispatcher(logger log.Log) *Dispatcher {
	if logger == nil {
		logger = log.NewNop()
	}
	d := &Dispatcher{handlers: make(map[string]Handler), log: logger}
	d.Handle("noop", func(context.Context, Action, time.Duration) Status { return StatusSucceeded })
	d.Handle("timed", Timed)
	return d
}

// Handle registers h for actions named name.
func (d *Dispatcher) Handle(name string, h Handler) {
	d.mu.Lock()
	d.handlers[name] = h
	d.mu.Unlock()
}

// Step advances the current action of q by dt. Actions without a handler fail.
func (d *Dispatcher) Step(ctx context.Context, q *Queue, dt time.Duration) {
	h, a, elapsed, ok := q.advance(dt)
	if !ok {
		return
	}
	d.mu.RLock()
	handler, found := d.handlers[a.Name]
	d.mu.RUnlock()
	if !found {
		d.log.Warn("no handler for action", log.String("action", a.Name))
		q.SetStatus(h, StatusFailed)
		return
	}
	if s := handler(ctx, a, elapsed); s != StatusActive {
		q.SetStatus(h, s)
	}
}

type timedArgs struct {
	Duration time.Duration `mapstructure:"duration"`
	Fail     bool          `mapstructure:"fail"`
}

// Timed completes once args["duration"] has elapsed, failing instead when
// args["fail"] is set.
func Timed(_ context.Context, a Action, elapsed time.Duration) Status {
	var args timedArgs
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			secondsToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
		Result:           &args,
	})
	if err != nil || dec.Decode(a.Args) != nil {
		return StatusFailed
	}
	if elapsed < args.Duration {
		return StatusActive
	}
	if args.Fail {
		return StatusFailed
	}
	return StatusSucceeded
}

// secondsToDurationHook reads bare numbers as seconds, matching how tree
// documents write durations.
func secondsToDurationHook(_, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return data, nil
}

// advance adds dt to the current action's clock.
func (q *Queue) advance(dt time.Duration) (Handle, Action, time.Duration, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chain := q.chainLocked()
	if len(chain) == 0 {
		return 0, Action{}, 0, false
	}
	e := chain[len(chain)-1]
	e.elapsed += dt
	return e.id, e.action, e.elapsed, true
}
