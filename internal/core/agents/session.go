package agents

import (
	"github.com/google/uuid"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/logic"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// Session is the shared world of a group of agents: condition types, the
// event bus and session-wide variables.
type Session struct {
	id     uuid.UUID
	logic  *logic.Registry
	events bus.EventBus
	vars   *memory.Store
}

var _ bt.Session = (*Session)(nil)

// NewSession creates a session. A nil bus gets a fresh in-memory one.
func NewSession(conditions *logic.Registry, events bus.EventBus, logger log.Log) *Session {
	if conditions == nil {
		conditions = logic.NewRegistry(logger)
	}
	if events == nil {
		events = bus.New()
	}
	return &Session{
		id:     uuid.New(),
		logic:  conditions,
		events: events,
		vars:   memory.New(),
	}
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) Logic() *logic.Registry { return s.logic }

func (s *Session) Events() bus.EventBus { return s.events }

func (s *Session) Vars() bt.WorkingMemory { return s.vars }

// Store returns the session variables as a concrete store.
func (s *Session) Store() *memory.Store { return s.vars }
