package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var treesDir = filepath.Join("..", "..", "examples", "trees")

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidate(t *testing.T) {
	out, err := execute(t, "validate", treesDir)
	require.NoError(t, err)
	assert.Contains(t, out, "guard: ok")
	assert.Contains(t, out, "worker: ok")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("root: {type: Sequence, children: [Teleport]}"), 0o644))
	out, err = execute(t, "validate", bad)
	require.Error(t, err)
	assert.Contains(t, out, "bad: FAIL")
}

func TestInspect(t *testing.T) {
	out, err := execute(t, "inspect", filepath.Join(treesDir, "worker.json"))
	require.NoError(t, err)
	assert.Contains(t, out, "INDEX")
	assert.Regexp(t, `0\s+Selector\s+6\s+0`, out)
	assert.Regexp(t, `5\s+SetVar\s+6\s+2`, out)
}

func TestRun(t *testing.T) {
	out, err := execute(t, "run",
		"--assets", treesDir,
		"--tree", "worker",
		"--agents", "3",
		"--ticks", "20",
		"--dt", "100ms",
		"--log-level", "silent",
	)
	require.NoError(t, err)
	assert.Regexp(t, `succeeded\s+3`, out)
	assert.NotContains(t, out, "running")
}
