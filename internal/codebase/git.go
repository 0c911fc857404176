// Package codebase implements the repository fetcher (component E) and
// source analyzer (component F): partial git clones/refreshes plus a
// syntactic scan of the checked-out tree.
package codebase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"aprz.dev/aprz/internal/aprzerr"
	"aprz.dev/aprz/internal/specs"
)

// gitTimeout is the hard cap on any single git invocation, per spec.md
// §5. The child process is killed, not just abandoned, on expiry.
const gitTimeout = 5 * time.Minute

// Fetcher manages partial-clone working sets under RepoCacheRoot.
type Fetcher struct {
	RepoCacheRoot string
}

func NewFetcher(root string) *Fetcher {
	return &Fetcher{RepoCacheRoot: root}
}

// WorktreePath returns the on-disk path a repo's working set lives at.
func (f *Fetcher) WorktreePath(r specs.RepoSpec) string {
	return filepath.Join(f.RepoCacheRoot, "repos", r.Host, r.Owner, r.Repo)
}

// Sync brings the working set for r up to date: fetch+reset on an
// existing checkout (removing and re-cloning if the fetch fails or the
// checkout is corrupt), or a fresh blob-less single-branch clone.
func (f *Fetcher) Sync(ctx context.Context, r specs.RepoSpec) (string, error) {
	path := f.WorktreePath(r)

	if isGitRepo(path) {
		if err := f.refresh(ctx, path); err == nil {
			return path, nil
		}
		// Fetch failed or .git is missing/corrupt: start over.
		if err := os.RemoveAll(path); err != nil {
			return "", fmt.Errorf("codebase: removing stale checkout %s: %w: %w", path, aprzerr.Io, err)
		}
	}

	if err := f.clone(ctx, r, path); err != nil {
		return "", err
	}
	return path, nil
}

func isGitRepo(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && (info.IsDir() || info.Mode().IsRegular())
}

func (f *Fetcher) clone(ctx context.Context, r specs.RepoSpec, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("codebase: mkdir: %w: %w", aprzerr.Io, err)
	}
	_, err := runGit(ctx, "", "clone", "--filter=blob:none", "--single-branch", r.URL, path)
	return err
}

func (f *Fetcher) refresh(ctx context.Context, path string) error {
	if _, err := runGit(ctx, path, "fetch", "--prune", "--force"); err != nil {
		return err
	}
	_, err := runGit(ctx, path, "reset", "--hard", "origin/HEAD")
	return err
}

// runGit executes a git subprocess bounded by gitTimeout. On timeout
// the child process is killed, never merely abandoned.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	cmd.Cancel = func() error {
		return cmd.Process.Kill()
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if cctx.Err() != nil {
			return "", fmt.Errorf("codebase: git %s timed out: %w: %w", strings.Join(args, " "), aprzerr.Timeout, cctx.Err())
		}
		return "", fmt.Errorf("codebase: git %s: %w: %s", strings.Join(args, " "), err, out.String())
	}
	return out.String(), nil
}

// ContributorStats holds the results of a history scan.
type ContributorStats struct {
	Contributors uint64
	CommitsTotal uint64
	Commits90d   uint64
	Commits180d  uint64
	Commits365d  uint64
	LastCommit   time.Time
}

// History derives contributor count (unique author emails across all
// refs, mailmap-respecting) and commit counts, defaulting to zero/epoch
// with a logged warning on any failure per spec.md §4.E step 4.
func History(ctx context.Context, worktree string) ContributorStats {
	stats := ContributorStats{LastCommit: time.Unix(0, 0).UTC()}
	warn := func(what string, err error) {
		slog.WarnContext(ctx, "git history: "+what+" unavailable, using default", slog.String("worktree", worktree), slog.Any("err", err))
	}

	if out, err := runGit(ctx, worktree, "log", "--all", "--use-mailmap", "--format=%aE"); err == nil {
		seen := make(map[string]bool)
		for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
			if line != "" {
				seen[line] = true
			}
		}
		stats.Contributors = uint64(len(seen))
	} else {
		warn("contributors", err)
	}

	now := time.Now()
	for _, w := range []struct {
		dur    time.Duration
		target *uint64
	}{
		{90 * 24 * time.Hour, &stats.Commits90d},
		{180 * 24 * time.Hour, &stats.Commits180d},
		{365 * 24 * time.Hour, &stats.Commits365d},
	} {
		since := now.Add(-w.dur).Format(time.RFC3339)
		if out, err := runGit(ctx, worktree, "rev-list", "--count", "--all", "--since="+since); err == nil {
			*w.target = parseCount(out)
		} else {
			warn("windowed commit count", err)
		}
	}

	if out, err := runGit(ctx, worktree, "rev-list", "--count", "--all"); err == nil {
		stats.CommitsTotal = parseCount(out)
	} else {
		warn("total commit count", err)
	}

	if out, err := runGit(ctx, worktree, "log", "-1", "--format=%cI"); err == nil {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(out)); err == nil {
			stats.LastCommit = t
		} else {
			warn("last commit time", err)
		}
	} else {
		warn("last commit time", err)
	}

	return stats
}

func parseCount(s string) uint64 {
	s = strings.TrimSpace(s)
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + uint64(r-'0')
	}
	return n
}
