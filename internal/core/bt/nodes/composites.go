package nodes

import "github.com/zeusync/npcbrain/internal/core/bt"

// Sequence runs its children in order and fails on the first failure.
type Sequence struct{ bt.Composite }

func (Sequence) TraverseFromChild(_, skip, childNext int, child bt.Status, _ *bt.Context) (bt.Status, int) {
	if child == bt.StatusSucceeded && childNext < skip {
		return bt.StatusRunning, childNext
	}
	return child, skip
}

// Selector runs its children in order and succeeds on the first success.
type Selector struct{ bt.Composite }

func (Selector) TraverseFromParent(self, skip int, _ *bt.Context) (bt.Status, int) {
	if self+1 < skip {
		return bt.StatusRunning, self + 1
	}
	return bt.StatusFailed, skip
}

func (Selector) TraverseFromChild(_, skip, childNext int, child bt.Status, _ *bt.Context) (bt.Status, int) {
	if child == bt.StatusFailed && childNext < skip {
		return bt.StatusRunning, childNext
	}
	return child, skip
}
