package bt

import (
	"reflect"
	"time"
)

// Kind is the behavior contract every node type implements. A Kind is
// configured once at compile time and shared by every player running the
// tree, so it must not keep per-agent state.
//
// Both methods return the node's status together with the next index the
// traversal should visit:
//   - next == self with StatusRunning (from TraverseFromParent only) asks the
//     player to activate this node as a leaf;
//   - self < next < skip descends into the child starting at next;
//   - next == skip concludes this node with the returned status.
//
// Any other combination is treated as a failure of the node.
type Kind interface {
	TraverseFromParent(self, skip int, ctx *Context) (Status, int)
	TraverseFromChild(self, skip, childNext int, child Status, ctx *Context) (Status, int)
}

// Initializer receives the node's params during compilation.
type Initializer interface {
	Init(params Params) error
}

// Footprint is the size and alignment of some piece of node state.
type Footprint struct {
	Size  uintptr
	Align uintptr
}

// FootprintOf returns the in-memory footprint of T.
func FootprintOf[T any]() Footprint {
	t := reflect.TypeFor[T]()
	return Footprint{Size: t.Size(), Align: uintptr(t.Align())}
}

// Instanced declares the runtime state a leaf needs while active.
type Instanced interface {
	Footprint() Footprint
}

// Instance is the per-player runtime slot of the active leaf. It is zeroed
// before every activation.
type Instance struct {
	State any
}

// Activator is implemented by leaves that run across ticks.
type Activator interface {
	// Activate is called exactly once when the leaf becomes active.
	Activate(ctx *Context, inst *Instance) Status
	// Deactivate is called exactly once when the leaf stops being active, for
	// whatever reason. It must tolerate a partially completed Activate.
	Deactivate(ctx *Context, inst *Instance)
	// Update is called once per tick while the leaf is active. It returns
	// (StatusRunning, self) to keep running or a terminal status with skip.
	Update(self, skip int, ctx *Context, inst *Instance, dt time.Duration) (Status, int)
}

// TreeStarter is called once per player start, in pre-order, so a node can
// register reactive listeners with sink.
type TreeStarter interface {
	OnTreeStarted(self int, ctx *Context, sink Sink)
}

// Arity bounds the number of children a node accepts. A negative max means
// unbounded.
type Arity interface {
	Children() (min, max int)
}

// Closer is called when a compiled tree is released.
type Closer interface {
	Close() error
}

// Leaf provides the traversal of a childless node that is activated by the
// player. Embed it and implement Activator.
type Leaf struct{}

func (Leaf) TraverseFromParent(self, _ int, _ *Context) (Status, int) {
	return StatusRunning, self
}

func (Leaf) TraverseFromChild(_, skip, _ int, _ Status, _ *Context) (Status, int) {
	return StatusFailed, skip
}

func (Leaf) Children() (int, int) { return 0, 0 }

// Decorator enters its only child and passes the child's status through.
// Embed it and override TraverseFromParent to gate the child.
type Decorator struct{}

func (Decorator) TraverseFromParent(self, skip int, _ *Context) (Status, int) {
	if self+1 < skip {
		return StatusSucceeded, self + 1
	}
	return StatusSucceeded, skip
}

func (Decorator) TraverseFromChild(_, skip, _ int, child Status, _ *Context) (Status, int) {
	return child, skip
}

func (Decorator) Children() (int, int) { return 0, 1 }

// Composite enters its first child. Embed it and override TraverseFromChild
// with the sibling policy.
type Composite struct{}

func (Composite) TraverseFromParent(self, skip int, _ *Context) (Status, int) {
	if self+1 < skip {
		return StatusRunning, self + 1
	}
	return StatusSucceeded, skip
}

func (Composite) Children() (int, int) { return 0, -1 }
