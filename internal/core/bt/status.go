package bt

// Status is the outcome a node reports to the traversal.
type Status uint8

const (
	// StatusIdle means nothing has run yet or the player was stopped.
	StatusIdle Status = iota
	// StatusRunning means a leaf is active and will be updated next tick.
	StatusRunning
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Terminal reports whether s concludes a node.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}
