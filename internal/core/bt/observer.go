package bt

import (
	"time"

	"github.com/google/uuid"
)

// Observer is notified of player activity. Callbacks run on the ticking
// goroutine and must be quick.
type Observer interface {
	OnActivate(agent uuid.UUID, node int, typ string)
	OnDeactivate(agent uuid.UUID, node int, typ string)
	// OnPreempt reports that the leaf at from was interrupted by a request at to.
	OnPreempt(agent uuid.UUID, from, to int)
	OnFinish(agent uuid.UUID, status Status)
	OnTick(agent uuid.UUID, d time.Duration)
}

// Observers fans out to several observers.
type Observers []Observer

func (o Observers) OnActivate(agent uuid.UUID, node int, typ string) {
	for _, ob := range o {
		ob.OnActivate(agent, node, typ)
	}
}

func (o Observers) OnDeactivate(agent uuid.UUID, node int, typ string) {
	for _, ob := range o {
		ob.OnDeactivate(agent, node, typ)
	}
}

func (o Observers) OnPreempt(agent uuid.UUID, from, to int) {
	for _, ob := range o {
		ob.OnPreempt(agent, from, to)
	}
}

func (o Observers) OnFinish(agent uuid.UUID, status Status) {
	for _, ob := range o {
		ob.OnFinish(agent, status)
	}
}

func (o Observers) OnTick(agent uuid.UUID, d time.Duration) {
	for _, ob := range o {
		ob.OnTick(agent, d)
	}
}

type nopObserver struct{}

func (nopObserver) OnActivate(uuid.UUID, int, string)   {}
func (nopObserver) OnDeactivate(uuid.UUID, int, string) {}
func (nopObserver) OnPreempt(uuid.UUID, int, int)       {}
func (nopObserver) OnFinish(uuid.UUID, Status)          {}
func (nopObserver) OnTick(uuid.UUID, time.Duration)     {}
