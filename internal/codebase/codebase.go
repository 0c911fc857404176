package codebase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/specs"
)

// Scanner ties the repository fetcher, history scan, and source
// analyzer together: one Scan call refreshes a repo's working set once
// and derives CodebaseData for every package that lives in it,
// honoring the "all packages in a repo refresh atomically" invariant.
type Scanner struct {
	Fetcher  *Fetcher
	Analyzer *Analyzer
}

func NewScanner(repoCacheRoot string) *Scanner {
	return &Scanner{Fetcher: NewFetcher(repoCacheRoot), Analyzer: NewAnalyzer()}
}

// Scan refreshes r's working set exactly once and returns a CodebaseData
// shared by every package specs names, since per-package source trees
// cannot be distinguished below the repository root.
func (s *Scanner) Scan(ctx context.Context, r specs.RepoSpec, pkgs []specs.PackageSpec) (facts.CodebaseData, error) {
	worktree, err := s.Fetcher.Sync(ctx, r)
	if err != nil {
		return facts.CodebaseData{}, fmt.Errorf("codebase: sync %s: %w", r, err)
	}

	data, err := s.Analyzer.Analyze(ctx, worktree)
	if err != nil {
		return facts.CodebaseData{}, fmt.Errorf("codebase: analyze %s: %w", r, err)
	}

	stats := History(ctx, worktree)
	data.ContributorCount = stats.Contributors
	data.Commits = facts.WindowCounts{
		Total:    stats.CommitsTotal,
		Last90d:  stats.Commits90d,
		Last180d: stats.Commits180d,
		Last365d: stats.Commits365d,
	}
	data.LastCommit = stats.LastCommit

	workflows, miri, clippy := detectCIMarkers(worktree)
	data.WorkflowsDetected = workflows
	data.MiriDetected = miri
	data.ClippyDetected = clippy

	return data, nil
}

// detectCIMarkers reports whether a CI workflow directory is present
// and whether any workflow file mentions miri or clippy tooling, per
// spec.md's CI-detection supplement.
func detectCIMarkers(worktree string) (workflows, miri, clippy bool) {
	dir := filepath.Join(worktree, ".github", "workflows")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, false, false
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		workflows = true
		body, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		text := string(body)
		if strings.Contains(text, "miri") {
			miri = true
		}
		if strings.Contains(text, "clippy") {
			clippy = true
		}
	}
	return workflows, miri, clippy
}
