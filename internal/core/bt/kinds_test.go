package bt

import (
	"fmt"
	"time"

	"github.com/zeusync/npcbrain/internal/core/memory"
)

type trace struct {
	events []string
}

func (t *trace) add(format string, args ...any) {
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

func (t *trace) count(event string) int {
	n := 0
	for _, e := range t.events {
		if e == event {
			n++
		}
	}
	return n
}

type seqKind struct{ Composite }

func (seqKind) TraverseFromChild(_, skip, childNext int, child Status, _ *Context) (Status, int) {
	if child == StatusSucceeded && childNext < skip {
		return StatusRunning, childNext
	}
	return child, skip
}

type selKind struct{ Composite }

func (selKind) TraverseFromChild(_, skip, childNext int, child Status, _ *Context) (Status, int) {
	if child == StatusFailed && childNext < skip {
		return StatusRunning, childNext
	}
	return child, skip
}

// gateKind lets its child run while a boolean in working memory is set.
type gateKind struct {
	Decorator
	Flag string `param:"flag"`
	Pass bool   `param:"pass"`
	tr   *trace
}

func (g *gateKind) Init(p Params) error { return p.Decode(g) }

func (g *gateKind) open(ctx *Context) bool {
	if g.Flag == "" {
		return g.Pass
	}
	v, _ := ctx.Memory.TryGet(memory.K(g.Flag))
	b, _ := v.(bool)
	return b
}

func (g *gateKind) TraverseFromParent(self, skip int, ctx *Context) (Status, int) {
	g.tr.add("eval:%d", self)
	if !g.open(ctx) {
		return StatusFailed, skip
	}
	return g.Decorator.TraverseFromParent(self, skip, ctx)
}

func (g *gateKind) OnTreeStarted(self int, ctx *Context, sink Sink) {
	if g.Flag == "" || ctx.Memory == nil {
		return
	}
	sub, err := ctx.Memory.OnChange(memory.K(g.Flag), func() { sink.RequestEvaluation(self) })
	if err != nil {
		sink.Poll(self)
		return
	}
	sink.Track(sub)
}

type actState struct {
	updates int
}

// actKind succeeds (or fails) on its Ticks-th update.
type actKind struct {
	Leaf
	Name  string `param:"name"`
	Ticks int    `param:"ticks"`
	Fail  bool   `param:"fail"`
	tr    *trace
}

func (a *actKind) Init(p Params) error { return p.Decode(a) }

func (a *actKind) Footprint() Footprint { return FootprintOf[actState]() }

func (a *actKind) Activate(_ *Context, inst *Instance) Status {
	a.tr.add("activate:%s", a.Name)
	inst.State = &actState{}
	return StatusRunning
}

func (a *actKind) Deactivate(_ *Context, inst *Instance) {
	a.tr.add("deactivate:%s", a.Name)
	inst.State = nil
}

func (a *actKind) Update(self, skip int, _ *Context, inst *Instance, _ time.Duration) (Status, int) {
	a.tr.add("update:%s", a.Name)
	st := inst.State.(*actState)
	st.updates++
	if st.updates < a.Ticks {
		return StatusRunning, self
	}
	if a.Fail {
		return StatusFailed, skip
	}
	return StatusSucceeded, skip
}

// instantKind concludes synchronously without activation.
type instantKind struct {
	Leaf
	Fail bool `param:"fail"`
}

func (k *instantKind) Init(p Params) error { return p.Decode(k) }

func (k *instantKind) TraverseFromParent(_, skip int, _ *Context) (Status, int) {
	if k.Fail {
		return StatusFailed, skip
	}
	return StatusSucceeded, skip
}

// rogueKind answers with an index outside its subtree.
type rogueKind struct{ Leaf }

func (rogueKind) TraverseFromParent(_, skip int, _ *Context) (Status, int) {
	return StatusSucceeded, skip + 5
}

// loopKind keeps re-entering its first child forever.
type loopKind struct{ Composite }

func (loopKind) TraverseFromChild(self, _, _ int, _ Status, _ *Context) (Status, int) {
	return StatusRunning, self + 1
}

type closingKind struct {
	Leaf
	closed *int
}

func (c *closingKind) Close() error {
	*c.closed++
	return nil
}

func testRegistry(tr *trace) *Registry {
	r := NewRegistry()
	r.MustRegister("Seq", func() Kind { return &seqKind{} })
	r.MustRegister("Sel", func() Kind { return &selKind{} })
	r.MustRegister("Gate", func() Kind { return &gateKind{tr: tr} })
	r.MustRegister("Act", func() Kind { return &actKind{tr: tr} })
	r.MustRegister("Loop", func() Kind { return &loopKind{} })
	_ = RegisterKind[instantKind](r, "Instant")
	_ = RegisterKind[rogueKind](r, "Rogue")
	return r
}

func n(typ string, params Params, children ...*NodeDescriptor) *NodeDescriptor {
	return &NodeDescriptor{Type: typ, Params: params, Children: children}
}

func act(name string, ticks int) *NodeDescriptor {
	return n("Act", Params{{Key: "name", Value: name}, {Key: "ticks", Value: ticks}})
}

func gate(flag string, child *NodeDescriptor) *NodeDescriptor {
	return n("Gate", Params{{Key: "flag", Value: flag}}, child)
}

func constGate(pass bool, child *NodeDescriptor) *NodeDescriptor {
	if child == nil {
		return n("Gate", Params{{Key: "pass", Value: pass}})
	}
	return n("Gate", Params{{Key: "pass", Value: pass}}, child)
}
