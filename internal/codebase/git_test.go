package codebase

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"aprz.dev/aprz/internal/specs"
)

// newLocalOriginRepo creates a bare git repo with one commit, usable as
// a clone source without any network access.
func newLocalOriginRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	work := filepath.Join(root, "work")
	origin := filepath.Join(root, "origin.git")

	run := func(dir string, args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, string(out))
	}

	require.NoError(t, os.MkdirAll(work, 0o755))
	run(work, "init", "-q")
	run(work, "config", "user.email", "a@example.com")
	run(work, "config", "user.name", "a")
	require.NoError(t, os.WriteFile(filepath.Join(work, "README.md"), []byte("hello"), 0o644))
	run(work, "add", ".")
	run(work, "commit", "-q", "-m", "initial")

	run(root, "clone", "-q", "--bare", work, origin)
	return origin
}

func TestFetcherSyncClonesThenRefreshes(t *testing.T) {
	origin := newLocalOriginRepo(t)
	cacheRoot := t.TempDir()

	f := NewFetcher(cacheRoot)
	r := specs.RepoSpec{URL: origin, Host: "local", Owner: "o", Repo: "r"}

	path, err := f.Sync(context.Background(), r)
	require.NoError(t, err)
	require.DirExists(t, path)
	require.FileExists(t, filepath.Join(path, "README.md"))

	// second sync should refresh the existing checkout, not re-clone.
	path2, err := f.Sync(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, path, path2)
}

func TestHistoryCountsContributorsAndCommits(t *testing.T) {
	origin := newLocalOriginRepo(t)
	cacheRoot := t.TempDir()

	f := NewFetcher(cacheRoot)
	r := specs.RepoSpec{URL: origin, Host: "local", Owner: "o", Repo: "r"}
	path, err := f.Sync(context.Background(), r)
	require.NoError(t, err)

	stats := History(context.Background(), path)
	require.Equal(t, uint64(1), stats.Contributors)
	require.Equal(t, uint64(1), stats.CommitsTotal)
	require.False(t, stats.LastCommit.IsZero())
}
