package bt

import (
	"context"

	"github.com/google/uuid"

	"github.com/zeusync/npcbrain/internal/core/actuator"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/logic"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

// WorkingMemory is the agent blackboard as seen by node kinds.
type WorkingMemory interface {
	Get(key memory.Key) any
	TryGet(key memory.Key) (any, bool)
	Set(key memory.Key, value any)
	OnChange(key memory.Key, fn func()) (memory.Subscription, error)
}

// Session is the world an agent lives in.
type Session interface {
	ID() string
	Logic() *logic.Registry
	Events() bus.EventBus
	Vars() WorkingMemory
}

// Sink receives reactive registrations made in OnTreeStarted.
type Sink interface {
	// Track hands a subscription to the player, which cancels it on stop.
	Track(sub memory.Subscription)
	// RequestEvaluation asks for traversal to be reconsidered at index on the
	// next tick. Safe to call from any goroutine.
	RequestEvaluation(index int)
	// Poll asks the player to reconsider index every tick, for nodes that
	// could not subscribe to their sources.
	Poll(index int)
}

// Context is supplied by the caller for every call into a player. The core
// never owns any of it. Ctx bounds the agent's lifetime; leaves that start
// external work refuse to once it is done.
type Context struct {
	Ctx     context.Context
	Session Session
	Agent   uuid.UUID
	Memory  WorkingMemory
	Actions actuator.Actuator
	Log     log.Log
}

// Env builds the condition environment for this agent.
func (c *Context) Env() logic.Env {
	env := logic.Env{Topic: c.Agent.String()}
	if c.Memory != nil {
		env.Local = c.Memory
	}
	if c.Session != nil {
		if vars := c.Session.Vars(); vars != nil {
			env.Session = vars
		}
		env.Events = c.Session.Events()
	}
	return env
}

// Err reports why the agent's lifetime context ended, or nil.
func (c *Context) Err() error {
	if c == nil || c.Ctx == nil {
		return nil
	}
	return c.Ctx.Err()
}

// Logger never returns nil.
func (c *Context) Logger() log.Log {
	if c == nil || c.Log == nil {
		return log.NewNop()
	}
	return c.Log
}
