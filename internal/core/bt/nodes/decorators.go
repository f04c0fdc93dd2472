package nodes

import (
	"errors"
	"fmt"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/logic"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// Condition gates its optional child on a logic condition. Without a child it
// concludes with the condition's value. It subscribes to the condition's
// sources so a change preempts lower-priority branches.
type Condition struct {
	bt.Decorator
	cond logic.Condition
}

func (c *Condition) Init(p bt.Params) error {
	raw, ok := p.Get("condition")
	if !ok {
		return errors.New("condition: condition is required")
	}
	cond, err := logic.Decode(raw)
	if err != nil {
		return fmt.Errorf("condition: %w", err)
	}
	c.cond = cond
	return nil
}

func (c *Condition) TraverseFromParent(self, skip int, ctx *bt.Context) (bt.Status, int) {
	if !c.holds(ctx) {
		return bt.StatusFailed, skip
	}
	return c.Decorator.TraverseFromParent(self, skip, ctx)
}

func (c *Condition) OnTreeStarted(self int, ctx *bt.Context, sink bt.Sink) {
	reg := registry(ctx)
	if reg == nil {
		return
	}
	if len(reg.Sources(c.cond)) == 0 {
		return
	}
	subs, err := reg.Subscribe(c.cond, ctx.Env(), func() { sink.RequestEvaluation(self) })
	if err != nil {
		ctx.Logger().Debug("condition falls back to polling",
			log.Int("node", self), log.String("condition", reg.Text(c.cond)), log.Error(err))
		sink.Poll(self)
		return
	}
	for _, s := range subs {
		sink.Track(s)
	}
}

// Text renders the condition.
func (c *Condition) Text(reg *logic.Registry) string { return reg.Text(c.cond) }

func (c *Condition) holds(ctx *bt.Context) bool {
	reg := registry(ctx)
	if reg == nil {
		ctx.Logger().Warn("condition evaluated without a session")
		return false
	}
	return reg.Evaluate(c.cond, ctx.Env())
}

func registry(ctx *bt.Context) *logic.Registry {
	if ctx.Session == nil {
		return nil
	}
	return ctx.Session.Logic()
}

// Inverter flips its child's outcome.
type Inverter struct{ bt.Decorator }

func (Inverter) TraverseFromChild(_, skip, _ int, child bt.Status, _ *bt.Context) (bt.Status, int) {
	switch child {
	case bt.StatusSucceeded:
		return bt.StatusFailed, skip
	case bt.StatusFailed:
		return bt.StatusSucceeded, skip
	}
	return child, skip
}

func (Inverter) Children() (int, int) { return 1, 1 }

// Succeeder reports success whatever its child did.
type Succeeder struct{ bt.Decorator }

func (Succeeder) TraverseFromChild(_, skip, _ int, _ bt.Status, _ *bt.Context) (bt.Status, int) {
	return bt.StatusSucceeded, skip
}
