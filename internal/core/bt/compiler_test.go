package bt

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTree() *NodeDescriptor {
	return n("Sel", nil,
		gate("alarm", n("Seq", nil, act("flee", 2), act("hide", 1))),
		n("Seq", nil,
			constGate(true, nil),
			act("patrol", 3),
		),
		act("idle", 1),
	)
}

func TestCompileSkipInvariants(t *testing.T) {
	tree, err := Compile(sampleTree(), testRegistry(&trace{}))
	require.NoError(t, err)

	N := tree.Len()
	require.Equal(t, 9, N)
	assert.Equal(t, N, tree.Skip(0))
	for i := 0; i < N; i++ {
		assert.Greater(t, tree.Skip(i), i, "node %d", i)
		assert.LessOrEqual(t, tree.Skip(i), N, "node %d", i)
	}
	assert.Equal(t, 4, tree.MaxDepth())
	assert.Equal(t, 3, tree.Node(3).Depth)
}

func TestCompileChildrenRecoverDeclaredOrder(t *testing.T) {
	desc := sampleTree()
	tree, err := Compile(desc, testRegistry(&trace{}))
	require.NoError(t, err)

	// Walk the descriptor and the compiled array side by side.
	type pair struct {
		d   *NodeDescriptor
		idx int
	}
	queue := []pair{{desc, 0}}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		assert.Equal(t, p.d.Type, tree.Node(p.idx).Type)
		kids := tree.Children(p.idx)
		require.Len(t, kids, len(p.d.Children), "children of %d", p.idx)
		for i, c := range kids {
			queue = append(queue, pair{p.d.Children[i], c})
		}
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	reg := testRegistry(&trace{})
	desc := sampleTree()
	a, err := Compile(desc, reg)
	require.NoError(t, err)
	b, err := Compile(desc, reg)
	require.NoError(t, err)

	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		assert.Equal(t, a.Skip(i), b.Skip(i))
		assert.Equal(t, a.Node(i).Type, b.Node(i).Type)
		if _, ok := a.Node(i).Kind.(*actKind); ok {
			assert.NotSame(t, a.Node(i).Kind, b.Node(i).Kind)
		}
	}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, a.Layout().Offsets, b.Layout().Offsets)

	other, err := Compile(n("Seq", nil, act("x", 1)), reg)
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), other.Fingerprint())
}

func TestCompileInstancePerPosition(t *testing.T) {
	tree, err := Compile(n("Seq", nil, act("a", 1), act("a", 1)), testRegistry(&trace{}))
	require.NoError(t, err)
	assert.NotSame(t, tree.Node(1).Kind, tree.Node(2).Kind)
}

func TestCompileErrors(t *testing.T) {
	reg := testRegistry(&trace{})

	_, err := Compile(nil, reg)
	assert.ErrorIs(t, err, ErrEmptyTree)

	_, err = Compile(n("Seq", nil, act("a", 1), n("Nope", nil)), reg)
	require.ErrorIs(t, err, ErrUnknownType)
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "root/1", ce.Path)
	assert.Equal(t, "Nope", ce.Type)

	_, err = Compile(n("Seq", nil, act("a", 1), nil), reg)
	assert.ErrorIs(t, err, ErrNilNode)

	_, err = Compile(n("Gate", nil, act("a", 1), act("b", 1)), reg)
	assert.ErrorIs(t, err, ErrArity)

	_, err = Compile(n("Seq", nil, n("Act", Params{{Key: "ticks", Value: "many"}})), reg)
	require.Error(t, err)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "root/0", ce.Path)
}

func TestCompileLayout(t *testing.T) {
	tree, err := Compile(sampleTree(), testRegistry(&trace{}))
	require.NoError(t, err)

	l := tree.Layout()
	require.Len(t, l.Offsets, tree.Len())
	assert.NotZero(t, l.Size)
	assert.Zero(t, l.Size%l.Align)
	for i := 1; i < len(l.Offsets); i++ {
		assert.GreaterOrEqual(t, l.Offsets[i], l.Offsets[i-1])
	}
	assert.Equal(t, FootprintOf[actState](), tree.Runtime())

	st := tree.Stats()
	assert.Equal(t, tree.Len(), st.Nodes)
	assert.Equal(t, tree.Runtime().Size, st.RuntimeSize)
}

func TestRegistry(t *testing.T) {
	r := testRegistry(&trace{})
	assert.Contains(t, r.Names(), "Instant")
	assert.ErrorIs(t, r.Register("", func() Kind { return &seqKind{} }), ErrBadKind)
	assert.ErrorIs(t, r.Register("Nil", func() Kind { return nil }), ErrBadKind)

	_, fp, ok := r.Lookup("Act")
	require.True(t, ok)
	assert.Equal(t, FootprintOf[actKind](), fp)
}

func TestReleaseClosesKinds(t *testing.T) {
	closed := 0
	r := testRegistry(&trace{})
	r.MustRegister("Closing", func() Kind { return &closingKind{closed: &closed} })

	tree, err := Compile(n("Seq", nil, n("Closing", nil), n("Closing", nil)), r)
	require.NoError(t, err)
	require.NoError(t, tree.Release())
	require.NoError(t, tree.Release())
	assert.Equal(t, 2, closed)
	assert.True(t, tree.Released())
}

func TestParamsDecode(t *testing.T) {
	var cfg struct {
		Wait  time.Duration `param:"wait"`
		Count int           `param:"count"`
		Name  string        `param:"name"`
	}
	p := Params{{Key: "wait", Value: "1.5s"}, {Key: "count", Value: "3"}, {Key: "name", Value: "a"}, {Key: "name", Value: "b"}}
	require.NoError(t, p.Decode(&cfg))
	assert.Equal(t, 1500*time.Millisecond, cfg.Wait)
	assert.Equal(t, 3, cfg.Count)
	assert.Equal(t, "b", cfg.Name)

	v, ok := p.Get("name")
	require.True(t, ok)
	assert.Equal(t, "b", v)
	_, ok = p.Get("missing")
	assert.False(t, ok)
}
