package nodes

import (
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/npcbrain/internal/core/actuator"
	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

type waitState struct {
	elapsed time.Duration
}

// Wait stays running until its duration has elapsed.
type Wait struct {
	bt.Leaf
	duration time.Duration
}

func (w *Wait) Init(p bt.Params) error {
	raw, ok := p.Get("duration")
	if !ok {
		return errors.New("wait: duration is required")
	}
	d, err := parseDuration(raw)
	if err != nil {
		return fmt.Errorf("wait: %w", err)
	}
	w.duration = d
	return nil
}

func (w *Wait) Footprint() bt.Footprint { return bt.FootprintOf[waitState]() }

func (w *Wait) Activate(_ *bt.Context, inst *bt.Instance) bt.Status {
	inst.State = &waitState{}
	return bt.StatusRunning
}

func (w *Wait) Deactivate(_ *bt.Context, inst *bt.Instance) {
	inst.State = nil
}

func (w *Wait) Update(self, skip int, _ *bt.Context, inst *bt.Instance, dt time.Duration) (bt.Status, int) {
	st, ok := inst.State.(*waitState)
	if !ok {
		return bt.StatusFailed, skip
	}
	st.elapsed += dt
	if st.elapsed < w.duration {
		return bt.StatusRunning, self
	}
	return bt.StatusSucceeded, skip
}

// parseDuration accepts Go duration strings or a number of seconds.
func parseDuration(raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		return time.ParseDuration(v)
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	case uint64:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case time.Duration:
		return v, nil
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", raw, raw)
	}
}

// SetVar writes a value to agent memory, or to session variables when
// session is set, and succeeds immediately.
type SetVar struct {
	bt.Leaf
	Key     string `param:"key"`
	Value   any    `param:"value"`
	Session bool   `param:"session"`
	key     memory.Key
}

func (s *SetVar) Init(p bt.Params) error {
	if err := p.Decode(s); err != nil {
		return err
	}
	if s.Key == "" {
		return errors.New("setvar: key is required")
	}
	s.key = memory.K(s.Key)
	return nil
}

func (s *SetVar) TraverseFromParent(_, skip int, ctx *bt.Context) (bt.Status, int) {
	target := ctx.Memory
	if s.Session && ctx.Session != nil {
		target = ctx.Session.Vars()
	}
	if target == nil {
		return bt.StatusFailed, skip
	}
	target.Set(s.key, s.Value)
	return bt.StatusSucceeded, skip
}

// Log writes a message to the agent's logger and succeeds.
type Log struct {
	bt.Leaf
	Message string `param:"message"`
	Level   string `param:"level"`
	level   log.Level
}

func (l *Log) Init(p bt.Params) error {
	if err := p.Decode(l); err != nil {
		return err
	}
	l.level = log.LevelInfo
	if l.Level != "" {
		l.level = log.ParseLevel(l.Level)
	}
	if l.level == log.LevelFatal {
		l.level = log.LevelError
	}
	return nil
}

func (l *Log) TraverseFromParent(self, skip int, ctx *bt.Context) (bt.Status, int) {
	ctx.Logger().Log(l.level, l.Message, log.Agent(ctx.Agent), log.Int("node", self))
	return bt.StatusSucceeded, skip
}

type performState struct {
	handle actuator.Handle
}

// Perform enqueues an action on the agent's actuator and runs until the
// action finishes. Deactivation cancels an action that is still active.
type Perform struct {
	bt.Leaf
	Action string         `param:"action"`
	Args   map[string]any `param:"args"`
}

func (p *Perform) Init(params bt.Params) error {
	if err := params.Decode(p); err != nil {
		return err
	}
	if p.Action == "" {
		return errors.New("perform: action is required")
	}
	return nil
}

func (p *Perform) Footprint() bt.Footprint { return bt.FootprintOf[performState]() }

func (p *Perform) Activate(ctx *bt.Context, inst *bt.Instance) bt.Status {
	if ctx.Actions == nil {
		ctx.Logger().Warn("perform without actuator", log.String("action", p.Action))
		return bt.StatusFailed
	}
	if err := ctx.Err(); err != nil {
		ctx.Logger().Debug("perform after agent shutdown", log.String("action", p.Action), log.Error(err))
		return bt.StatusFailed
	}
	h := ctx.Actions.Enqueue(actuator.Action{Name: p.Action, Args: p.Args})
	inst.State = &performState{handle: h}
	return bt.StatusRunning
}

func (p *Perform) Deactivate(ctx *bt.Context, inst *bt.Instance) {
	st, ok := inst.State.(*performState)
	if !ok || ctx.Actions == nil {
		return
	}
	ctx.Actions.Cancel(st.handle)
	ctx.Actions.Remove(st.handle)
	inst.State = nil
}

func (p *Perform) Update(self, skip int, ctx *bt.Context, inst *bt.Instance, _ time.Duration) (bt.Status, int) {
	st, ok := inst.State.(*performState)
	if !ok {
		return bt.StatusFailed, skip
	}
	switch ctx.Actions.Status(st.handle) {
	case actuator.StatusActive:
		return bt.StatusRunning, self
	case actuator.StatusSucceeded:
		return bt.StatusSucceeded, skip
	default:
		return bt.StatusFailed, skip
	}
}
