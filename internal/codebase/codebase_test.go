package codebase

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWorkflow(t *testing.T, worktree, name, body string) {
	t.Helper()
	dir := filepath.Join(worktree, ".github", "workflows")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDetectCIMarkersNoWorkflowsDir(t *testing.T) {
	workflows, miri, clippy := detectCIMarkers(t.TempDir())
	assert.False(t, workflows)
	assert.False(t, miri)
	assert.False(t, clippy)
}

func TestDetectCIMarkersFindsMiriAndClippy(t *testing.T) {
	worktree := t.TempDir()
	writeWorkflow(t, worktree, "ci.yml", "run: cargo +nightly miri test\nrun: cargo clippy -- -D warnings\n")

	workflows, miri, clippy := detectCIMarkers(worktree)
	assert.True(t, workflows)
	assert.True(t, miri)
	assert.True(t, clippy)
}

// Marker matching is case-sensitive, per the upstream ecosystem's exact
// tool names — a workflow that only ever capitalizes them differently
// must not be detected.
func TestDetectCIMarkersAreCaseSensitive(t *testing.T) {
	worktree := t.TempDir()
	writeWorkflow(t, worktree, "ci.yml", "run: cargo +nightly MIRI test\nrun: cargo CLIPPY -- -D warnings\n")

	workflows, miri, clippy := detectCIMarkers(worktree)
	assert.True(t, workflows)
	assert.False(t, miri)
	assert.False(t, clippy)
}

func TestDetectCIMarkersWorkflowsOnly(t *testing.T) {
	worktree := t.TempDir()
	writeWorkflow(t, worktree, "ci.yml", "run: go test ./...\n")

	workflows, miri, clippy := detectCIMarkers(worktree)
	assert.True(t, workflows)
	assert.False(t, miri)
	assert.False(t, clippy)
}
