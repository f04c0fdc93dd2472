package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/npcbrain/internal/core/events/bus"
	"github.com/zeusync/npcbrain/internal/core/memory"
	"github.com/zeusync/npcbrain/internal/core/observability/log"
)

func TestDecodeForms(t *testing.T) {
	c, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, "", c.Type)

	c, err = Decode(false)
	require.NoError(t, err)
	assert.Equal(t, "False", c.Type)

	c, err = Decode(map[string]any{
		"type": "And",
		"conditions": []any{
			"True",
			map[string]any{"type": "Not", "condition": map[string]any{"type": "VarSet", "key": "hp"}},
		},
	})
	require.NoError(t, err)
	require.Len(t, c.Inner, 2)
	assert.Equal(t, "Not", c.Inner[1].Type)
	require.Len(t, c.Inner[1].Inner, 1)
	assert.Equal(t, "hp", c.Inner[1].Inner[0].Param("key"))
	assert.NotContains(t, c.Params, "conditions")

	_, err = Decode(map[string]any{"type": "And", "conditions": "nope"})
	assert.ErrorIs(t, err, ErrBadCondition)
}

func TestEvaluateDefaults(t *testing.T) {
	r := NewRegistry(log.NewNop())
	env := Env{Local: memory.New()}

	assert.True(t, r.Evaluate(Condition{}, env))
	assert.False(t, r.Evaluate(Condition{Type: "Bogus"}, env))
	assert.True(t, r.Evaluate(Condition{Type: "And"}, env))
	assert.False(t, r.Evaluate(Condition{Type: "Or"}, env))
	assert.True(t, r.Evaluate(Condition{Type: "Not"}, env))
	assert.False(t, r.Evaluate(Condition{Type: "Not", Inner: []Condition{{Type: "True"}}}, env))
}

func TestVarComparisons(t *testing.T) {
	r := NewRegistry(nil)
	local := memory.New()
	session := memory.New()
	env := Env{Local: local, Session: session}

	local.Set(memory.K("hp"), 30)
	session.Set(memory.K("threshold"), 50.0)
	session.Set(memory.K("name"), "bob")

	cmp := func(typ, left, op string, right any) Condition {
		return Condition{Type: typ, Params: map[string]any{"left": left, "op": op, "right": right}}
	}

	assert.True(t, r.Evaluate(cmp("VarCmpConst", "hp", "<", 50), env))
	assert.True(t, r.Evaluate(cmp("VarCmpConst", "hp", "==", 30.0), env))
	assert.False(t, r.Evaluate(cmp("VarCmpConst", "hp", ">", 30), env))
	assert.False(t, r.Evaluate(cmp("VarCmpConst", "hp", "==", "30"), env))
	assert.False(t, r.Evaluate(cmp("VarCmpConst", "missing", "==", 1), env))
	assert.True(t, r.Evaluate(cmp("VarCmpVar", "hp", "<=", "threshold"), env))
	assert.True(t, r.Evaluate(cmp("VarCmpConst", "name", ">=", "alice"), env))
	assert.False(t, r.Evaluate(cmp("VarCmpConst", "name", "~", "bob"), env))
	assert.True(t, r.Evaluate(Condition{Type: "VarSet", Params: map[string]any{"key": "name"}}, env))
}

func TestCompareBooleans(t *testing.T) {
	assert.True(t, Compare(true, "==", true))
	assert.True(t, Compare(true, "!=", false))
	assert.False(t, Compare(true, "<", false))
	assert.False(t, Compare(true, "==", 1))
}

func TestSubscribeVarSources(t *testing.T) {
	r := NewRegistry(nil)
	local := memory.New()
	session := memory.New()
	env := Env{Local: local, Session: session}

	c := Condition{Type: "VarCmpConst", Params: map[string]any{"left": "hp", "op": "<", "right": 10}}
	calls := 0
	subs, err := r.Subscribe(c, env, func() { calls++ })
	require.NoError(t, err)
	require.Len(t, subs, 2)

	local.Set(memory.K("hp"), 5)
	session.Set(memory.K("hp"), 5)
	assert.Equal(t, 2, calls)

	for _, s := range subs {
		require.NoError(t, s.Cancel())
	}
	local.Set(memory.K("hp"), 6)
	assert.Equal(t, 2, calls)
	assert.Zero(t, local.Listeners())
}

func TestSubscribeIsAllOrNothing(t *testing.T) {
	r := NewRegistry(nil)
	local := memory.New()
	c := Condition{Type: "And", Inner: []Condition{
		{Type: "VarSet", Params: map[string]any{"key": "a"}},
		{Type: "Event", Params: map[string]any{"event": "alarm"}},
	}}

	_, err := r.Subscribe(c, Env{Local: local}, func() {})
	require.Error(t, err)
	assert.Zero(t, local.Listeners())
}

func TestEventCondition(t *testing.T) {
	r := NewRegistry(nil)
	local := memory.New()
	events := bus.New()
	env := Env{Local: local, Events: events, Topic: "agent-1"}
	c := Condition{Type: "Event", Params: map[string]any{"event": "alarm"}}

	assert.False(t, r.Evaluate(c, env))

	fired := 0
	subs, err := r.Subscribe(c, env, func() { fired++ })
	require.NoError(t, err)
	require.Len(t, subs, 1)

	require.NoError(t, events.PublishToTopic("agent-2", bus.NewEvent("alarm", "test", nil)))
	assert.False(t, r.Evaluate(c, env))

	require.NoError(t, events.PublishToTopic("agent-1", bus.NewEvent("alarm", "test", nil)))
	assert.True(t, r.Evaluate(c, env))
	assert.Equal(t, 1, fired)
}

func TestText(t *testing.T) {
	r := NewRegistry(nil)
	c, err := Decode(map[string]any{
		"type": "Or",
		"conditions": []any{
			map[string]any{"type": "VarCmpConst", "left": "hp", "op": "<", "right": 10},
			map[string]any{"type": "Not", "condition": "True"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "(hp<10 or not True)", r.Text(c))
	assert.Equal(t, "true", r.Text(Condition{}))
}
