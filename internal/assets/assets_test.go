package assets

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/npcbrain/internal/core/bt"
	"github.com/zeusync/npcbrain/internal/core/bt/nodes"
)

const guard = `
name: guard
variables:
  hp: 100
root:
  type: Selector
  children:
    - type: Condition
      params:
        condition: {type: VarCmpConst, left: hp, op: "<", right: 20}
        zeta: 1
        alpha: 2
      child: {type: Perform, params: {action: flee}}
    - type: Wait
      params: {duration: 1s}
`

func TestParseYAML(t *testing.T) {
	doc, err := Parse([]byte(guard))
	require.NoError(t, err)
	assert.Equal(t, "guard", doc.Name)
	assert.Equal(t, 100, doc.Variables["hp"])

	root := doc.Root
	require.Equal(t, "Selector", root.Type)
	require.Len(t, root.Children, 2)

	cond := root.Children[0]
	assert.Equal(t, "Condition", cond.Type)
	keys := make([]string, 0, len(cond.Params))
	for _, p := range cond.Params {
		keys = append(keys, p.Key)
	}
	assert.Equal(t, []string{"condition", "zeta", "alpha"}, keys)
	c, ok := cond.Params.Get("condition")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "VarCmpConst", "left": "hp", "op": "<", "right": 20}, c)

	require.Len(t, cond.Children, 1)
	assert.Equal(t, "Perform", cond.Children[0].Type)
}

func TestParseJSON(t *testing.T) {
	doc, err := Parse([]byte(`{"root": {"type": "Sequence", "children": ["Succeeder", {"type": "Wait", "params": {"duration": 0.5}}]}}`))
	require.NoError(t, err)
	require.Len(t, doc.Root.Children, 2)
	assert.Equal(t, "Succeeder", doc.Root.Children[0].Type)
	d, _ := doc.Root.Children[1].Params.Get("duration")
	assert.Equal(t, 0.5, d)
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no root":       `name: x`,
		"missing type":  `root: {params: {a: 1}}`,
		"unknown field": `root: {type: Wait, colour: red}`,
		"bad children":  `root: {type: Sequence, children: Wait}`,
		"bad params":    `root: {type: Wait, params: [1, 2]}`,
		"both child":    `root: {type: Inverter, child: Wait, children: [Wait]}`,
		"syntax":        `root: [`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			assert.Error(t, err)
		})
	}
	_, err := Parse([]byte(`name: x`))
	assert.ErrorIs(t, err, ErrNoRoot)
	_, err = Parse([]byte(`root: {type: Wait, colour: red}`))
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestLibraryCompilesOnce(t *testing.T) {
	lib := NewLibrary(nodes.NewRegistry(), nil)
	doc, err := Parse([]byte(guard))
	require.NoError(t, err)
	require.NoError(t, lib.Add(doc))
	assert.ErrorIs(t, lib.Add(doc), ErrDuplicate)

	var wg sync.WaitGroup
	trees := make([]*bt.CompiledTree, 8)
	for i := range trees {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree, err := lib.Tree("guard")
			assert.NoError(t, err)
			trees[i] = tree
		}(i)
	}
	wg.Wait()
	for _, tree := range trees[1:] {
		assert.Same(t, trees[0], tree)
	}
	assert.Equal(t, 4, trees[0].Len())

	_, err = lib.Tree("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, lib.Release())
	assert.True(t, trees[0].Released())
	again, err := lib.Tree("guard")
	require.NoError(t, err)
	assert.NotSame(t, trees[0], again)
}

func TestLibraryValidate(t *testing.T) {
	lib := NewLibrary(nodes.NewRegistry(), nil)
	require.NoError(t, lib.Add(&Document{Name: "ok", Root: &bt.NodeDescriptor{Type: "Succeeder"}}))
	require.NoError(t, lib.Add(&Document{Name: "bad", Root: &bt.NodeDescriptor{Type: "Teleport"}}))
	err := lib.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, bt.ErrUnknownType)
	assert.Contains(t, err.Error(), "bad")
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "guard.yaml"), []byte(guard), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "idle.json"), []byte(`{"root": "Succeeder"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	lib := NewLibrary(nodes.NewRegistry(), nil)
	require.NoError(t, lib.LoadDir(dir))
	assert.Equal(t, []string{"guard", "idle"}, lib.Names())
	require.NoError(t, lib.Validate())
}

func TestExampleTrees(t *testing.T) {
	lib := NewLibrary(nodes.NewRegistry(), nil)
	require.NoError(t, lib.LoadDir(filepath.Join("..", "..", "examples", "trees")))
	assert.Contains(t, lib.Names(), "guard")
	assert.Contains(t, lib.Names(), "worker")
	require.NoError(t, lib.Validate())
}
