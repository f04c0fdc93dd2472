package agents

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/npcbrain/internal/core/actuator"
	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/bt/nodes"
	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/memory"
)

const frame = 100 * time.Millisecond

type trees map[string]*bt.CompiledTree

func (t trees) Tree(name string) (*bt.CompiledTree, error) {
	tree, ok := t[name]
	if !ok {
		return nil, fmt.Errorf("unknown tree %q", name)
	}
	return tree, nil
}

func compile(t *testing.T, desc *bt.NodeDescriptor) *bt.CompiledTree {
	t.Helper()
	tree, err := bt.Compile(desc, nodes.NewRegistry())
	require.NoError(t, err)
	return tree
}

func library(t *testing.T) trees {
	return trees{
		"idle": compile(t, &bt.NodeDescriptor{Type: "Wait", Params: bt.Params{{Key: "duration", Value: "250ms"}}}),
		"work": compile(t, &bt.NodeDescriptor{Type: "Perform", Params: bt.Params{{Key: "action", Value: "timed"}, {Key: "args", Value: map[string]any{"duration": "150ms"}}}}),
		"instant": compile(t, &bt.NodeDescriptor{Type: "SetVar", Params: bt.Params{{Key: "key", Value: "done"}, {Key: "value", Value: true}}}),
	}
}

type frames struct {
	mu     sync.Mutex
	agents int
	count  int
}

func (f *frames) SetAgents(n int) {
	f.mu.Lock()
	f.agents = n
	f.mu.Unlock()
}

func (f *frames) ObserveFrame(time.Duration) {
	f.mu.Lock()
	f.count++
	f.mu.Unlock()
}

func collectFinished(t *testing.T, events bus.EventBus) func() []Finished {
	var (
		mu  sync.Mutex
		got []Finished
	)
	_, err := events.Subscribe(EventFinished, func(ev bus.Event) error {
		mu.Lock()
		got = append(got, ev.Data().(Finished))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return func() []Finished {
		mu.Lock()
		defer mu.Unlock()
		return append([]Finished(nil), got...)
	}
}

func TestSpawnUnknownTree(t *testing.T) {
	m := NewManager(nil, library(t), nil)
	_, err := m.Spawn(context.Background(), "missing", nil)
	assert.Error(t, err)
	assert.Zero(t, m.Len())
}

func TestUpdateRunsAgentsToCompletion(t *testing.T) {
	stats := &frames{}
	m := NewManager(nil, library(t), nil, WithWorkers(4), WithFrameObserver(stats))
	finished := collectFinished(t, m.Session().Events())

	for i := 0; i < 16; i++ {
		_, err := m.Spawn(context.Background(), "idle", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 16, stats.agents)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Update(context.Background(), frame))
	}
	got := finished()
	require.Len(t, got, 16)
	for _, f := range got {
		assert.Equal(t, "succeeded", f.Status)
		assert.Equal(t, "idle", f.Tree)
	}
	for _, a := range m.List() {
		assert.False(t, a.Player.Running())
	}
	assert.Equal(t, 3, stats.count)

	// concluded agents are left alone without restart
	require.NoError(t, m.Update(context.Background(), frame))
	assert.Len(t, finished(), 16)
}

func TestSynchronousTreeFinishesOnSpawn(t *testing.T) {
	m := NewManager(nil, library(t), nil)
	finished := collectFinished(t, m.Session().Events())

	a, err := m.Spawn(context.Background(), "instant", nil)
	require.NoError(t, err)
	assert.Equal(t, true, a.Memory.Get(memory.K("done")))
	require.Len(t, finished(), 1)
	assert.Equal(t, a.ID, finished()[0].Agent)
}

func TestRestart(t *testing.T) {
	m := NewManager(nil, library(t), nil, WithRestart(true))
	finished := collectFinished(t, m.Session().Events())

	_, err := m.Spawn(context.Background(), "instant", nil)
	require.NoError(t, err)
	require.NoError(t, m.Update(context.Background(), frame))
	require.NoError(t, m.Update(context.Background(), frame))
	assert.Len(t, finished(), 3)
}

func TestDispatcherDrivesActions(t *testing.T) {
	m := NewManager(nil, library(t), nil, WithDispatcher(actuator.NewDispatcher(nil)))
	finished := collectFinished(t, m.Session().Events())

	a, err := m.Spawn(context.Background(), "work", nil)
	require.NoError(t, err)
	require.Equal(t, 1, a.Actions.Len())

	require.NoError(t, m.Update(context.Background(), frame))
	assert.True(t, a.Player.Running())
	require.NoError(t, m.Update(context.Background(), frame))
	assert.False(t, a.Player.Running())
	require.Len(t, finished(), 1)
	assert.Equal(t, "succeeded", finished()[0].Status)
	assert.Zero(t, a.Actions.Len())
}

func TestCancelledSpawnContextAbortsAgent(t *testing.T) {
	m := NewManager(nil, library(t), nil, WithRestart(true), WithDispatcher(actuator.NewDispatcher(nil)))
	finished := collectFinished(t, m.Session().Events())

	ctx, cancel := context.WithCancel(context.Background())
	a, err := m.Spawn(ctx, "work", nil)
	require.NoError(t, err)
	require.Equal(t, 1, a.Actions.Len())

	cancel()
	require.NoError(t, m.Update(context.Background(), frame))
	assert.False(t, a.Player.Running())
	assert.Equal(t, bt.StatusFailed, a.Player.Status())
	assert.Zero(t, a.Actions.Len())
	require.Len(t, finished(), 1)
	assert.Equal(t, "failed", finished()[0].Status)

	// no restart once the agent's context is gone
	require.NoError(t, m.Update(context.Background(), frame))
	assert.Len(t, finished(), 1)
	assert.False(t, a.Player.Running())
}

func TestFinishedIsPublishedToAgentTopic(t *testing.T) {
	m := NewManager(nil, library(t), nil)
	a, err := m.Spawn(context.Background(), "idle", nil)
	require.NoError(t, err)

	var got []string
	_, err = m.Session().Events().SubscribeTopic(a.ID.String(), EventFinished, func(ev bus.Event) error {
		got = append(got, ev.Source())
		return nil
	})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.Update(context.Background(), frame))
	}
	assert.Equal(t, []string{a.ID.String()}, got)
}

func TestGetListDespawn(t *testing.T) {
	m := NewManager(nil, library(t), nil)
	a, err := m.Spawn(context.Background(), "work", nil)
	require.NoError(t, err)
	b, err := m.Spawn(context.Background(), "idle", nil)
	require.NoError(t, err)

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Len(t, m.List(), 2)

	info := a.Info()
	assert.Equal(t, "running", info.Status)
	assert.Equal(t, 0, info.Active)
	assert.Equal(t, "Perform", info.Node)

	require.NoError(t, m.Despawn(a.ID))
	assert.Equal(t, bt.StatusIdle, a.Player.Status())
	assert.Zero(t, a.Actions.Len())
	assert.ErrorIs(t, m.Despawn(a.ID), ErrAgentNotFound)

	list := m.List()
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].ID)

	m.Close()
	assert.Zero(t, m.Len())
}

func TestSnapshotRestore(t *testing.T) {
	m := NewManager(nil, library(t), nil)
	a, err := m.Spawn(context.Background(), "idle", map[string]any{"mood": "calm"})
	require.NoError(t, err)

	data, err := m.Snapshot(a.ID)
	require.NoError(t, err)

	a.Memory.Set(memory.K("mood"), "angry")
	require.NoError(t, m.Restore(a.ID, data))
	assert.Equal(t, "calm", a.Memory.Get(memory.K("mood")))

	_, err = m.Snapshot(uuid.New())
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestRedisSnapshots(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	plain := NewManager(nil, library(t), nil)
	a, err := plain.Spawn(context.Background(), "idle", nil)
	require.NoError(t, err)
	assert.ErrorIs(t, plain.Save(context.Background(), a.ID), ErrNoSnapshots)

	m := NewManager(nil, library(t), nil, WithSnapshots(memory.NewRedisSnapshots(client, "test", 0)))
	a, err = m.Spawn(context.Background(), "idle", map[string]any{"name": "guard"})
	require.NoError(t, err)
	require.NoError(t, m.Save(context.Background(), a.ID))

	a.Memory.Set(memory.K("name"), "thief")
	require.NoError(t, m.Load(context.Background(), a.ID))
	assert.Equal(t, "guard", a.Memory.Get(memory.K("name")))

	assert.ErrorIs(t, m.Load(context.Background(), uuid.New()), ErrAgentNotFound)
}
