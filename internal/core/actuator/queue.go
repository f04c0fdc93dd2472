package actuator

import (
	"sync"
	"time"
)

// Status of a queued action.
type Status uint8

const (
	StatusNone Status = iota
	StatusActive
	StatusSucceeded
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "none"
	}
}

// Terminal reports whether the action has finished one way or another.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// Action is a named request for an effector system.
type Action struct {
	Name string
	Args map[string]any
}

// Handle identifies an action inside one Queue. Zero is never issued.
type Handle uint64

// Actuator is the effector surface a behavior tree drives.
type Actuator interface {
	Enqueue(a Action) Handle
	FindCurrent(name string, under Handle) (Handle, bool)
	Status(h Handle) Status
	PushOrUpdateChild(parent Handle, a Action) (Handle, bool)
	Cancel(h Handle) bool
	Remove(h Handle)
	Reset()
}

var _ Actuator = (*Queue)(nil)

type entry struct {
	id      Handle
	parent  Handle
	action  Action
	status  Status
	elapsed time.Duration
}

// Queue is a per-agent hierarchical action queue. Root actions run in FIFO
// order; each action may have at most one child, forming a chain from the
// root to the action currently being executed.
type Queue struct {
	mu      sync.Mutex
	entries []*entry
	nextID  Handle
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends a root action and returns its handle.
func (q *Queue) Enqueue(a Action) Handle {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pushLocked(0, a)
}

// PushOrUpdateChild ensures parent's child is an action named a.Name with the
// given args. An existing child of the same name is updated in place and
// reactivated; a child of another name is replaced along with its subtree.
func (q *Queue) PushOrUpdateChild(parent Handle, a Action) (Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.findLocked(parent) == nil {
		return 0, false
	}
	if child := q.childLocked(parent); child != nil {
		if child.action.Name == a.Name {
			child.action.Args = a.Args
			child.status = StatusActive
			child.elapsed = 0
			q.removeSubtreeLocked(child.id, false)
			return child.id, true
		}
		q.removeSubtreeLocked(child.id, true)
	}
	return q.pushLocked(parent, a), true
}

// FindCurrent walks the current chain from the deepest action up and returns
// the first one named name. When under is non-zero the search is limited to
// descendants of that action.
func (q *Queue) FindCurrent(name string, under Handle) (Handle, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chain := q.chainLocked()
	for i := len(chain) - 1; i >= 0; i-- {
		e := chain[i]
		if under != 0 && e.id == under {
			break
		}
		if e.action.Name == name {
			return e.id, true
		}
	}
	return 0, false
}

// Current returns the deepest action of the current chain.
func (q *Queue) Current() (Handle, Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	chain := q.chainLocked()
	if len(chain) == 0 {
		return 0, Action{}, false
	}
	e := chain[len(chain)-1]
	return e.id, e.action, true
}

// Status returns the status of h, or StatusNone when it is unknown.
func (q *Queue) Status(h Handle) Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e := q.findLocked(h); e != nil {
		return e.status
	}
	return StatusNone
}

// SetStatus records the outcome of h. A terminal status drops the action's
// children.
func (q *Queue) SetStatus(h Handle, s Status) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.findLocked(h)
	if e == nil {
		return false
	}
	e.status = s
	if s.Terminal() {
		q.removeSubtreeLocked(h, false)
	}
	return true
}

// Cancel marks h cancelled if it is still active and drops its children.
func (q *Queue) Cancel(h Handle) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.findLocked(h)
	if e == nil || e.status != StatusActive {
		return false
	}
	e.status = StatusCancelled
	q.removeSubtreeLocked(h, false)
	return true
}

// Remove deletes h and its subtree.
func (q *Queue) Remove(h Handle) {
	q.mu.Lock()
	q.removeSubtreeLocked(h, true)
	q.mu.Unlock()
}

// Reset cancels and drops every action.
func (q *Queue) Reset() {
	q.mu.Lock()
	q.entries = q.entries[:0]
	q.mu.Unlock()
}

// Len is the number of queued actions, children included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *Queue) pushLocked(parent Handle, a Action) Handle {
	q.nextID++
	q.entries = append(q.entries, &entry{id: q.nextID, parent: parent, action: a, status: StatusActive})
	return q.nextID
}

func (q *Queue) findLocked(h Handle) *entry {
	if h == 0 {
		return nil
	}
	for _, e := range q.entries {
		if e.id == h {
			return e
		}
	}
	return nil
}

func (q *Queue) childLocked(parent Handle) *entry {
	for _, e := range q.entries {
		if e.parent == parent && parent != 0 {
			return e
		}
	}
	return nil
}

// chainLocked returns the first active root and its active descendants.
func (q *Queue) chainLocked() []*entry {
	var chain []*entry
	for _, e := range q.entries {
		if e.parent == 0 && e.status == StatusActive {
			chain = append(chain, e)
			break
		}
	}
	for len(chain) > 0 {
		child := q.childLocked(chain[len(chain)-1].id)
		if child == nil || child.status != StatusActive {
			break
		}
		chain = append(chain, child)
	}
	return chain
}

// removeSubtreeLocked drops the descendants of h, and h itself when self is set.
func (q *Queue) removeSubtreeLocked(h Handle, self bool) {
	if h == 0 {
		return
	}
	doomed := map[Handle]bool{h: true}
	for changed := true; changed; {
		changed = false
		for _, e := range q.entries {
			if doomed[e.parent] && !doomed[e.id] {
				doomed[e.id] = true
				changed = true
			}
		}
	}
	kept := q.entries[:0]
	for _, e := range q.entries {
		if doomed[e.id] && (self || e.id != h) {
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
}
