package bt

import (
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

const noRequest = math.MaxInt64

// PlayerOption configures a Player.
type PlayerOption func(*Player)

// WithObserver attaches an observer. Several may be given.
func WithObserver(o Observer) PlayerOption {
	return func(p *Player) {
		if o == nil {
			return
		}
		if cur, ok := p.observer.(Observers); ok {
			p.observer = append(cur, o)
			return
		}
		if _, nop := p.observer.(nopObserver); nop {
			p.observer = o
			return
		}
		p.observer = Observers{p.observer, o}
	}
}

// Player runs one agent's copy of a compiled tree. It is not safe for
// concurrent use except for RequestEvaluation.
type Player struct {
	tree     *CompiledTree
	ctx      *Context
	log      log.Log
	observer Observer

	// active is the index of the running leaf or -1.
	active int
	inst   Instance
	// stack holds the ancestors of the current traversal position.
	stack []int

	subs    []memory.Subscription
	polls   []int
	pending atomic.Int64

	status  Status
	running bool
}

// NewPlayer creates an idle player for tree.
func NewPlayer(tree *CompiledTree, ctx *Context, opts ...PlayerOption) *Player {
	if ctx == nil {
		ctx = &Context{}
	}
	p := &Player{
		tree:     tree,
		ctx:      ctx,
		log:      ctx.Logger().Named("bt"),
		observer: nopObserver{},
		active:   -1,
		stack:    make([]int, 0, tree.MaxDepth()),
	}
	p.pending.Store(noRequest)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tree returns the compiled tree being played.
func (p *Player) Tree() *CompiledTree { return p.tree }

// Context returns the execution context given to NewPlayer.
func (p *Player) Context() *Context { return p.ctx }

// Status is the last status the tree reported.
func (p *Player) Status() Status { return p.status }

// Running reports whether the tree has not concluded yet.
func (p *Player) Running() bool { return p.running }

// Active returns the index of the running leaf.
func (p *Player) Active() (int, bool) { return p.active, p.active >= 0 }

// Start notifies every node that the tree started, then descends from the
// root until a leaf is running or the tree concludes. Starting a running
// player restarts it.
func (p *Player) Start() Status {
	if p.running {
		p.Stop()
	}
	if p.tree.Released() {
		p.log.Error("start on released tree")
		p.status = StatusFailed
		return p.status
	}
	p.pending.Store(noRequest)
	p.stack = p.stack[:0]
	p.running = true

	for i := 0; i < p.tree.Len(); i++ {
		if ts, ok := p.tree.nodes[i].Kind.(TreeStarter); ok {
			ts.OnTreeStarted(i, p.ctx, p)
		}
	}
	return p.settle(p.walk(0, StatusIdle, 0, true))
}

// Tick services a pending evaluation request if it preempts the running leaf,
// otherwise updates the running leaf and continues traversal when it
// concludes.
func (p *Player) Tick(dt time.Duration) Status {
	if !p.running {
		return p.status
	}
	began := time.Now()
	defer func() { p.observer.OnTick(p.ctx.Agent, time.Since(began)) }()

	for _, idx := range p.polls {
		p.RequestEvaluation(idx)
	}
	if req := int(p.pending.Swap(noRequest)); req != noRequest && p.active >= 0 && req < p.active {
		if st, handled := p.preempt(req); handled {
			return p.settle(st)
		}
	}
	if p.active < 0 {
		return p.settle(p.concludeIdle())
	}

	leaf := p.active
	node := &p.tree.nodes[leaf]
	act := node.Kind.(Activator)
	st, next := act.Update(leaf, node.Skip, p.ctx, &p.inst, dt)
	if st == StatusRunning && next == leaf {
		return p.settle(StatusRunning)
	}
	if !st.Terminal() || next != node.Skip {
		p.violation(leaf, "update", st, next)
		st = StatusFailed
	}
	p.deactivate()
	return p.settle(p.walk(leaf, st, node.Skip, false))
}

// RequestEvaluation asks the next Tick to reconsider traversal at index. The
// smallest index requested before that tick wins. Safe for concurrent use.
func (p *Player) RequestEvaluation(index int) {
	if index < 0 || index >= p.tree.Len() {
		return
	}
	want := int64(index)
	for {
		cur := p.pending.Load()
		if want >= cur || p.pending.CompareAndSwap(cur, want) {
			return
		}
	}
}

// Track keeps sub until the player stops.
func (p *Player) Track(sub memory.Subscription) {
	if sub != nil {
		p.subs = append(p.subs, sub)
	}
}

// Poll asks for index to be reconsidered on every tick.
func (p *Player) Poll(index int) {
	if index >= 0 && index < p.tree.Len() && !slices.Contains(p.polls, index) {
		p.polls = append(p.polls, index)
	}
}

// Stop deactivates the running leaf and releases subscriptions. The player
// reports StatusIdle afterwards.
func (p *Player) Stop() {
	p.halt()
	p.status = StatusIdle
}

// Abort is Stop that reports StatusFailed.
func (p *Player) Abort() {
	wasRunning := p.running
	p.halt()
	p.status = StatusFailed
	if wasRunning {
		p.observer.OnFinish(p.ctx.Agent, StatusFailed)
	}
}

func (p *Player) halt() {
	p.deactivate()
	p.stack = p.stack[:0]
	p.release()
	p.pending.Store(noRequest)
	p.running = false
}

// settle records the outcome of one traversal.
func (p *Player) settle(st Status) Status {
	p.status = st
	if st.Terminal() {
		p.deactivate()
		p.stack = p.stack[:0]
		p.release()
		p.running = false
		p.observer.OnFinish(p.ctx.Agent, st)
	}
	return st
}

func (p *Player) release() {
	for _, sub := range p.subs {
		if err := sub.Cancel(); err != nil {
			p.log.Debug("cancel subscription", log.Error(err))
		}
	}
	p.subs = p.subs[:0]
	p.polls = p.polls[:0]
}

// concludeIdle handles a running player without an active leaf, which only
// happens after a failed preemption left nothing to run.
func (p *Player) concludeIdle() Status {
	p.log.Warn("running tree without active leaf")
	return StatusFailed
}

// walk drives traversal starting at cur. With enter set, cur is entered from
// its parent; otherwise (st, next) is the result cur already produced. p.stack
// must hold the ancestors of cur.
func (p *Player) walk(cur int, st Status, next int, enter bool) Status {
	limit := 4*p.tree.Len() + p.tree.MaxDepth()
	for steps := 0; ; steps++ {
		if steps > limit {
			p.log.Error("traversal step limit exceeded",
				log.Int("node", cur), log.Int("limit", limit))
			p.deactivate()
			return StatusFailed
		}
		node := &p.tree.nodes[cur]

		if enter {
			st, next = node.Kind.TraverseFromParent(cur, node.Skip, p.ctx)
			if next == cur && st == StatusRunning {
				st = p.activate(cur)
				if st == StatusRunning {
					return StatusRunning
				}
				next = node.Skip
			}
		}

		switch {
		case next > cur && next < node.Skip && p.tree.isChild(cur, next):
			p.stack = append(p.stack, cur)
			cur, enter = next, true
			continue
		case next == node.Skip && st.Terminal():
		default:
			p.violation(cur, "traverse", st, next)
			st = StatusFailed
		}

		if len(p.stack) == 0 {
			return st
		}
		parent := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		pn := &p.tree.nodes[parent]
		st, next = pn.Kind.TraverseFromChild(parent, pn.Skip, node.Skip, st, p.ctx)
		cur, enter = parent, false
	}
}

// activate makes idx the running leaf with a fresh instance.
func (p *Player) activate(idx int) Status {
	node := &p.tree.nodes[idx]
	act, ok := node.Kind.(Activator)
	if !ok {
		p.violation(idx, "activate", StatusRunning, idx)
		return StatusFailed
	}
	p.inst = Instance{}
	p.active = idx
	p.observer.OnActivate(p.ctx.Agent, idx, node.Type)
	st := act.Activate(p.ctx, &p.inst)
	switch {
	case st == StatusRunning:
		return st
	case !st.Terminal():
		st = StatusFailed
	}
	p.deactivate()
	return st
}

func (p *Player) deactivate() {
	if p.active < 0 {
		return
	}
	idx := p.active
	p.active = -1
	node := &p.tree.nodes[idx]
	if act, ok := node.Kind.(Activator); ok {
		act.Deactivate(p.ctx, &p.inst)
	}
	p.inst = Instance{}
	p.observer.OnDeactivate(p.ctx.Agent, idx, node.Type)
}

// preempt reconsiders traversal at req, which precedes the running leaf. It
// reports false when the running branch is kept and the leaf should be
// updated as usual.
func (p *Player) preempt(req int) (Status, bool) {
	leaf := p.active

	if k := slices.Index(p.stack, req); k >= 0 {
		// req is an ancestor: keep the branch when it still routes to it.
		node := &p.tree.nodes[req]
		st, next := node.Kind.TraverseFromParent(req, node.Skip, p.ctx)
		onPath := leaf
		if k+1 < len(p.stack) {
			onPath = p.stack[k+1]
		}
		if next == onPath {
			return StatusRunning, false
		}
		p.stack = p.stack[:k]
		p.interrupt(leaf, req)
		return p.walk(req, st, next, false), true
	}

	// req lies in an earlier sibling subtree of some ancestor: rebuild the
	// ancestor chain down to req from skip indices.
	k := len(p.stack) - 1
	for k >= 0 && !(p.stack[k] < req && req < p.tree.nodes[p.stack[k]].Skip) {
		k--
	}
	if k < 0 {
		return StatusRunning, false
	}
	p.stack = p.stack[:k+1]
	for x := p.stack[k]; ; {
		c := x + 1
		for p.tree.nodes[c].Skip <= req {
			c = p.tree.nodes[c].Skip
		}
		if c == req {
			break
		}
		p.stack = append(p.stack, c)
		x = c
	}
	p.interrupt(leaf, req)
	return p.walk(req, StatusIdle, 0, true), true
}

// interrupt deactivates the running leaf before traversal re-descends from
// req. A re-descent that reaches the same leaf activates it afresh.
func (p *Player) interrupt(leaf, req int) {
	p.deactivate()
	p.observer.OnPreempt(p.ctx.Agent, leaf, req)
	p.log.Debug("preempted running leaf", log.Int("leaf", leaf), log.Int("request", req))
}

func (p *Player) violation(idx int, phase string, st Status, next int) {
	p.log.Warn("traversal protocol violation",
		log.String("phase", phase),
		log.Int("node", idx),
		log.String("type", p.tree.nodes[idx].Type),
		log.Stringer("status", st),
		log.Int("next", next),
	)
}
