// Package specs defines the identity types shared by every provider: a
// request (PackageRef), a resolved identity (PackageSpec), and the
// canonical identity of a source repository (RepoSpec).
package specs

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PackageRef is a request for facts about a package: a name and an
// optional pinned version. A versionless ref resolves to the highest
// released version during the snapshot query.
type PackageRef struct {
	Name    string
	Version *semver.Version // nil means "resolve to latest"
}

func (r PackageRef) String() string {
	if r.Version == nil {
		return r.Name
	}
	return fmt.Sprintf("%s@%s", r.Name, r.Version)
}

// RepoSpec is the canonical identity of a source repository. Two
// packages sharing a RepoSpec share repository-level facts (commit
// counts, contributors, CI signals, hosting stats) and are always
// refreshed together.
type RepoSpec struct {
	URL   string
	Host  string
	Owner string
	Repo  string
}

func (r RepoSpec) String() string {
	return fmt.Sprintf("%s/%s/%s", r.Host, r.Owner, r.Repo)
}

// ParseRepoURL derives a RepoSpec from a repository URL of the form
// "https://<host>/<owner>/<repo>[.git]". Returns ok=false for anything
// that doesn't look like a two-segment hosted repository path.
func ParseRepoURL(raw string) (RepoSpec, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return RepoSpec{}, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoSpec{}, false
	}

	owner, repo := parts[0], parts[1]
	repo = strings.TrimSuffix(repo, ".git")

	return RepoSpec{
		URL:   fmt.Sprintf("https://%s/%s/%s", u.Host, owner, repo),
		Host:  u.Host,
		Owner: owner,
		Repo:  repo,
	}, true
}

// PackageSpec is a resolved package identity, produced by the snapshot
// query engine: a name, a concrete version, and an optional repository.
type PackageSpec struct {
	Name     string
	Version  *semver.Version
	RepoSpec *RepoSpec
}

func (s PackageSpec) String() string {
	return fmt.Sprintf("%s@%s", s.Name, s.Version)
}

// Less orders specs by name, then by version, matching the original's
// Ord implementation (name has precedence over version).
func (s PackageSpec) Less(other PackageSpec) bool {
	if s.Name != other.Name {
		return s.Name < other.Name
	}
	if s.Version == nil || other.Version == nil {
		return other.Version != nil
	}
	return s.Version.LessThan(other.Version)
}

// GroupByRepo groups specs by their RepoSpec, dropping specs with no
// repository. This is the per-repository deduplication key used by the
// repository fetcher and hosting collector: every package sharing a repo
// is refreshed atomically.
func GroupByRepo(specs []PackageSpec) map[RepoSpec][]PackageSpec {
	out := make(map[RepoSpec][]PackageSpec)
	for _, s := range specs {
		if s.RepoSpec == nil {
			continue
		}
		out[*s.RepoSpec] = append(out[*s.RepoSpec], s)
	}
	return out
}
