package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"aprz.dev/aprz/internal/cache"
	"aprz.dev/aprz/internal/codebase"
	"aprz.dev/aprz/internal/hosting"
	"aprz.dev/aprz/internal/snapshot"
	"aprz.dev/aprz/internal/specs"
)

// fixtureTables builds a one-package, one-version, repository-less
// snapshot so Query resolves without hitting disk or the network.
func fixtureTables() *snapshot.Tables {
	packages := []snapshot.PackageFull{{ID: 1, Name: "demo"}}
	packagesLean := []snapshot.PackageLean{{ID: 1, Name: "demo"}}
	versions := []snapshot.VersionFull{{
		ID: 10, PackageID: 1, Num: "1.2.3", Description: "a demo package",
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}}
	versionsLean := []snapshot.VersionLean{{ID: 10, PackageID: 1}}

	empty := func() snapshot.Table[snapshot.DependencyLean, snapshot.DependencyFull] {
		return snapshot.NewMemTable[snapshot.DependencyLean, snapshot.DependencyFull](nil, nil)
	}

	return &snapshot.Tables{
		Packages:          snapshot.NewMemTable(packagesLean, packages),
		Versions:          snapshot.NewMemTable(versionsLean, versions),
		Dependencies:      empty(),
		Categories:        snapshot.NewMemTable[snapshot.CategoryRow, snapshot.CategoryRow](nil, nil),
		Keywords:          snapshot.NewMemTable[snapshot.KeywordRow, snapshot.KeywordRow](nil, nil),
		Users:             snapshot.NewMemTable[snapshot.UserRow, snapshot.UserRow](nil, nil),
		Teams:             snapshot.NewMemTable[snapshot.TeamRow, snapshot.TeamRow](nil, nil),
		Owners:            snapshot.NewMemTable[snapshot.OwnerJoinRow, snapshot.OwnerJoinRow](nil, nil),
		PackageCategories: snapshot.NewMemTable[snapshot.PackageCategoryJoinRow, snapshot.PackageCategoryJoinRow](nil, nil),
		PackageKeywords:   snapshot.NewMemTable[snapshot.PackageKeywordJoinRow, snapshot.PackageKeywordJoinRow](nil, nil),
		PackageDownloads:  snapshot.NewMemTable[snapshot.PackageDownloadRow, snapshot.PackageDownloadRow](nil, nil),
		VersionDownloads:  snapshot.NewMemTable[snapshot.VersionDownloadRow, snapshot.VersionDownloadRow](nil, nil),
	}
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	tables := fixtureTables()
	o := &Orchestrator{
		opts:            Options{CacheDir: dir},
		snapshotMgr:     snapshot.NewManager(dir, "", time.Hour),
		tables:          tables,
		registry:        snapshot.NewProvider(tables),
		hostingClient:   hosting.NewCollector(nil),
		codebaseScanner: codebase.NewScanner(dir),
		hostingCache:    cache.New(dir+"/hosting", time.Hour),
		codebaseCache:   cache.New(dir+"/codebase", time.Hour),
		coverageCache:   cache.New(dir+"/coverage", time.Hour),
		advisoryCache:   cache.New(dir+"/advisories", time.Hour),
		docsCache:       cache.New(dir+"/docs", time.Hour),
		factsCache:      cache.New(dir+"/facts", time.Hour),
		now:             time.Now,
	}
	return o
}

func TestCollectResolvesRepoLessPackageWithStubAuxiliaryProviders(t *testing.T) {
	o := newTestOrchestrator(t)
	v, err := semver.NewVersion("1.2.3")
	require.NoError(t, err)

	results := o.Collect(context.Background(), []specs.PackageRef{{Name: "demo", Version: v}})
	require.Len(t, results, 1)

	pf := results[0]
	require.Equal(t, specs.TagFound, pf.RegistryData.Tag)
	require.Equal(t, "a demo package", pf.RegistryData.Value.Description)
	require.Equal(t, specs.TagUnavailable, pf.HostingData.Tag)
	require.Equal(t, "no repository on record", pf.HostingData.Reason)
	require.Equal(t, specs.TagUnavailable, pf.CodebaseData.Tag)
	require.Equal(t, specs.TagUnavailable, pf.AdvisoryData.Tag)
	require.Equal(t, specs.TagUnavailable, pf.CoverageData.Tag)
	require.Equal(t, specs.TagUnavailable, pf.DocsData.Tag)
	require.True(t, pf.Complete())
}

func TestCollectReturnsPackageNotFoundForUnknownName(t *testing.T) {
	o := newTestOrchestrator(t)

	results := o.Collect(context.Background(), []specs.PackageRef{{Name: "does-not-exist"}})
	require.Len(t, results, 1)
	require.Equal(t, specs.TagPackageNotFound, results[0].RegistryData.Tag)
	require.True(t, results[0].Complete())
}

func TestCollectServesSecondCallFromFactsCache(t *testing.T) {
	o := newTestOrchestrator(t)
	v, err := semver.NewVersion("1.2.3")
	require.NoError(t, err)
	ref := specs.PackageRef{Name: "demo", Version: v}

	first := o.Collect(context.Background(), []specs.PackageRef{ref})
	require.Len(t, first, 1)

	second := o.Collect(context.Background(), []specs.PackageRef{ref})
	require.Len(t, second, 1)
	require.True(t, first[0].CollectedAt.Equal(second[0].CollectedAt), "second call should be served from the facts cache, not re-collected")
}

func TestCollectEmptyRefsReturnsNil(t *testing.T) {
	o := newTestOrchestrator(t)
	require.Nil(t, o.Collect(context.Background(), nil))
}

func TestFactsCacheKeySanitizesUnsafeCharacters(t *testing.T) {
	spec := specs.PackageSpec{Name: "weird/name", Version: mustVersion(t, "1.0.0")}
	key := factsCacheKey(spec)
	require.Equal(t, "weird_name@1.0.0.json", key)
}

func mustVersion(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}
