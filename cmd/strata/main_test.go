package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func exitCode(err error) int {
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	if err != nil {
		return exitFailure
	}
	return exitOK
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "strata version 0.1.0")
}

func TestApplyMemory(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "site.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("content:\n  - class: folder\n    name: Docs\n    children:\n      - class: folder\n        name: Guides\n"), 0o644))

	out, err := run(t, "apply", doc, "--adapter", "memory", "--no-color")
	require.NoError(t, err)
	assert.Contains(t, out, "2 locations created")
	assert.Contains(t, out, "undo: 3,2")
}

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "site.yaml")
	require.NoError(t, os.WriteFile(doc, []byte("content: []\n"), 0o644))

	_, err := run(t, "apply", doc, "--adapter", "fs", "--repo", filepath.Join(dir, "missing"))
	assert.Equal(t, exitFailure, exitCode(err), "unreachable repository")

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.Mkdir(empty, 0o755))
	_, err = run(t, "apply", doc, "--adapter", "fs", "--repo", empty)
	assert.Equal(t, exitEmptySchema, exitCode(err))

	site := filepath.Join(dir, "site")
	out, err := run(t, "init", site)
	require.NoError(t, err)
	assert.Contains(t, out, "Initialized empty strata repository")

	out, err = run(t, "apply", doc, "--adapter", "fs", "--repo", site)
	assert.Equal(t, exitOK, exitCode(err))
	assert.Contains(t, out, "0 locations created")
	assert.Contains(t, out, "nothing to undo")
	assert.NotContains(t, out, "undo:")
}
