package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeusync/npcbrain/internal/core/actuator"
	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
	"github.com/zeusync/npcbrain/pkg/concurrent"
)

// EventFinished is published when an agent's tree concludes.
const EventFinished = "agent.finished"

var (
	ErrAgentNotFound = errors.New("agents: agent not found")
	ErrNoSnapshots   = errors.New("agents: snapshot store not configured")
)

// Trees resolves tree names to compiled trees.
type Trees interface {
	Tree(name string) (*bt.CompiledTree, error)
}

// FrameObserver receives per-frame host statistics.
type FrameObserver interface {
	SetAgents(n int)
	ObserveFrame(d time.Duration)
}

// Finished is the payload of EventFinished.
type Finished struct {
	Agent  uuid.UUID `json:"agent"`
	Tree   string    `json:"tree"`
	Status string    `json:"status"`
}

// Agent is one hosted agent.
type Agent struct {
	ID      uuid.UUID
	Tree    string
	Player  *bt.Player
	Memory  *memory.Store
	Actions *actuator.Queue

	mu sync.Mutex
}

// Info is a point-in-time view of an agent.
type Info struct {
	ID     uuid.UUID `json:"id"`
	Tree   string    `json:"tree"`
	Status string    `json:"status"`
	Active int       `json:"active"`
	Node   string    `json:"node,omitempty"`
}

// Info describes the agent's current state.
func (a *Agent) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	info := Info{ID: a.ID, Tree: a.Tree, Status: a.Player.Status().String(), Active: -1}
	if idx, ok := a.Player.Active(); ok {
		info.Active = idx
		info.Node = a.Player.Tree().Node(idx).Type
	}
	return info
}

// Option configures a Manager.
type Option func(*Manager)

// WithWorkers bounds how many agents are ticked concurrently.
func WithWorkers(n int) Option {
	return func(m *Manager) { m.workers = n }
}

// WithObserver attaches a player observer to every spawned agent.
func WithObserver(o bt.Observer) Option {
	return func(m *Manager) {
		if o != nil {
			m.observers = append(m.observers, o)
		}
	}
}

// WithFrameObserver reports host statistics after every Update.
func WithFrameObserver(o FrameObserver) Option {
	return func(m *Manager) { m.frames = o }
}

// WithDispatcher drives agents' actuator queues every frame.
func WithDispatcher(d *actuator.Dispatcher) Option {
	return func(m *Manager) { m.dispatcher = d }
}

// WithSnapshots persists agent memory in redis.
func WithSnapshots(s *memory.RedisSnapshots) Option {
	return func(m *Manager) { m.snapshots = s }
}

// WithRestart restarts trees that concluded on the next frame.
func WithRestart(restart bool) Option {
	return func(m *Manager) { m.restart = restart }
}

// Manager hosts agents sharing one session and ticks them every frame.
type Manager struct {
	mu     sync.RWMutex
	agents map[uuid.UUID]*Agent

	session    *Session
	trees      Trees
	log        log.Log
	workers    int
	observers  bt.Observers
	frames     FrameObserver
	dispatcher *actuator.Dispatcher
	snapshots  *memory.RedisSnapshots
	restart    bool
}

// NewManager creates an empty host.
func NewManager(session *Session, trees Trees, logger log.Log, opts ...Option) *Manager {
	if logger == nil {
		logger = log.NewNop()
	}
	if session == nil {
		session = NewSession(nil, nil, logger)
	}
	m := &Manager{
		agents:  make(map[uuid.UUID]*Agent),
		session: session,
		trees:   trees,
		log:     logger.Named("agents"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the shared session.
func (m *Manager) Session() *Session { return m.session }

// Spawn creates an agent running treeName with the given initial memory and
// starts its tree. The agent is aborted on the first update after ctx ends.
func (m *Manager) Spawn(ctx context.Context, treeName string, vars map[string]any) (*Agent, error) {
	tree, err := m.trees.Tree(treeName)
	if err != nil {
		return nil, fmt.Errorf("spawn %s: %w", treeName, err)
	}

	a := &Agent{
		ID:      uuid.New(),
		Tree:    treeName,
		Memory:  memory.New(),
		Actions: actuator.NewQueue(),
	}
	for name, v := range vars {
		a.Memory.Set(memory.K(name), v)
	}
	a.Player = bt.NewPlayer(tree, &bt.Context{
		Ctx:     ctx,
		Session: m.session,
		Agent:   a.ID,
		Memory:  a.Memory,
		Actions: a.Actions,
		Log:     m.log.With(log.Agent(a.ID)),
	}, bt.WithObserver(m.observers))

	m.mu.Lock()
	m.agents[a.ID] = a
	n := len(m.agents)
	m.mu.Unlock()
	if m.frames != nil {
		m.frames.SetAgents(n)
	}

	a.mu.Lock()
	st := a.Player.Start()
	a.mu.Unlock()
	if st.Terminal() {
		m.finished(a, st)
	}
	m.log.Debug("agent spawned", log.Agent(a.ID), log.String("tree", treeName), log.Stringer("status", st))
	return a, nil
}

// Despawn stops and removes an agent.
func (m *Manager) Despawn(id uuid.UUID) error {
	m.mu.Lock()
	a, ok := m.agents[id]
	delete(m.agents, id)
	n := len(m.agents)
	m.mu.Unlock()
	if !ok {
		return ErrAgentNotFound
	}
	if m.frames != nil {
		m.frames.SetAgents(n)
	}
	a.mu.Lock()
	a.Player.Stop()
	a.Actions.Reset()
	a.mu.Unlock()
	return nil
}

// Get returns an agent by id.
func (m *Manager) Get(id uuid.UUID) (*Agent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.agents[id]
	return a, ok
}

// List returns every agent ordered by id.
func (m *Manager) List() []*Agent {
	m.mu.RLock()
	out := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// Len is the number of hosted agents.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.agents)
}

// Update advances every agent by one frame. Each agent is ticked by exactly
// one goroutine; at most the configured number of agents run at once.
func (m *Manager) Update(ctx context.Context, dt time.Duration) error {
	began := time.Now()
	err := concurrent.ForEach(ctx, m.List(), m.workers, func(ctx context.Context, a *Agent) error {
		m.tick(ctx, a, dt)
		return nil
	})
	if m.frames != nil {
		m.frames.ObserveFrame(time.Since(began))
	}
	return err
}

func (m *Manager) tick(ctx context.Context, a *Agent, dt time.Duration) {
	a.mu.Lock()
	if err := a.Player.Context().Err(); err != nil {
		running := a.Player.Running()
		if running {
			a.Player.Abort()
			a.Actions.Reset()
		}
		a.mu.Unlock()
		if running {
			m.log.Debug("agent context ended", log.Agent(a.ID), log.Error(err))
			m.finished(a, bt.StatusFailed)
		}
		return
	}
	if !a.Player.Running() {
		if !m.restart {
			a.mu.Unlock()
			return
		}
		a.Actions.Reset()
		if st := a.Player.Start(); st.Terminal() {
			a.mu.Unlock()
			m.finished(a, st)
			return
		}
		a.mu.Unlock()
		return
	}
	if m.dispatcher != nil {
		m.dispatcher.Step(ctx, a.Actions, dt)
	}
	st := a.Player.Tick(dt)
	a.mu.Unlock()
	if st.Terminal() {
		m.finished(a, st)
	}
}

func (m *Manager) finished(a *Agent, st bt.Status) {
	ev := bus.NewEvent(EventFinished, a.ID.String(), Finished{Agent: a.ID, Tree: a.Tree, Status: st.String()})
	if err := m.session.Events().Publish(ev); err != nil {
		m.log.Warn("finished handler failed", log.Agent(a.ID), log.Error(err))
	}
	if err := m.session.Events().PublishToTopic(a.ID.String(), ev); err != nil {
		m.log.Warn("finished handler failed", log.Agent(a.ID), log.Error(err))
	}
}

// Snapshot encodes an agent's working memory.
func (m *Manager) Snapshot(id uuid.UUID) ([]byte, error) {
	a, ok := m.Get(id)
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a.Memory.MarshalBinary()
}

// Restore replaces an agent's working memory with a snapshot. Conditions
// watching restored keys are notified as usual.
func (m *Manager) Restore(id uuid.UUID, data []byte) error {
	a, ok := m.Get(id)
	if !ok {
		return ErrAgentNotFound
	}
	return a.Memory.UnmarshalBinary(data)
}

// Save writes an agent's memory to the snapshot store.
func (m *Manager) Save(ctx context.Context, id uuid.UUID) error {
	if m.snapshots == nil {
		return ErrNoSnapshots
	}
	a, ok := m.Get(id)
	if !ok {
		return ErrAgentNotFound
	}
	return m.snapshots.Save(ctx, id.String(), a.Memory)
}

// Load restores an agent's memory from the snapshot store.
func (m *Manager) Load(ctx context.Context, id uuid.UUID) error {
	if m.snapshots == nil {
		return ErrNoSnapshots
	}
	a, ok := m.Get(id)
	if !ok {
		return ErrAgentNotFound
	}
	return m.snapshots.Load(ctx, id.String(), a.Memory)
}

// Close stops every agent.
func (m *Manager) Close() {
	for _, a := range m.List() {
		_ = m.Despawn(a.ID)
	}
}
