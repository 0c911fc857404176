package snapshot

import (
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aprz.dev/aprz/internal/specs"
)

func mustVersionForTest(t *testing.T, s string) *semver.Version {
	t.Helper()
	v, err := semver.NewVersion(s)
	require.NoError(t, err)
	return v
}

func fixtureProviderTables() *Tables {
	packagesLean := []PackageLean{{ID: 1, Name: "demo"}, {ID: 2, Name: "other"}}
	packagesFull := []PackageFull{{ID: 1, Name: "demo"}, {ID: 2, Name: "other"}}

	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	versionsLean := []VersionLean{{ID: 10, PackageID: 1}, {ID: 11, PackageID: 1}, {ID: 20, PackageID: 2}}
	versionsFull := []VersionFull{
		{
			ID: 10, PackageID: 1, Num: "1.0.0", Description: "old demo",
			Repository: "https://github.com/acme/demo", CreatedAt: created,
		},
		{
			ID: 11, PackageID: 1, Num: "1.2.3", Description: "a demo package",
			Repository: "https://github.com/acme/demo", CreatedAt: created.Add(200 * 24 * time.Hour),
		},
		{ID: 20, PackageID: 2, Num: "0.1.0", CreatedAt: created},
	}

	return &Tables{
		Packages:          NewMemTable(packagesLean, packagesFull),
		Versions:          NewMemTable(versionsLean, versionsFull),
		Dependencies:      NewMemTable([]DependencyLean{{PackageID: 1, VersionID: 20}}, []DependencyFull{{PackageID: 1, VersionID: 20}}),
		Categories:        NewMemTable([]CategoryRow{{ID: 1, Slug: "parsing"}}, []CategoryRow{{ID: 1, Slug: "parsing"}}),
		Keywords:          NewMemTable([]KeywordRow{{ID: 1, Word: "cli"}}, []KeywordRow{{ID: 1, Word: "cli"}}),
		Users:             NewMemTable([]UserRow{{ID: 1, Login: "alice"}}, []UserRow{{ID: 1, Login: "alice"}}),
		Teams:             NewMemTable([]TeamRow(nil), []TeamRow(nil)),
		Owners:            NewMemTable([]OwnerJoinRow{{PackageID: 1, OwnerID: 1, IsTeam: false}}, []OwnerJoinRow{{PackageID: 1, OwnerID: 1, IsTeam: false}}),
		PackageCategories: NewMemTable([]PackageCategoryJoinRow{{PackageID: 1, CategoryID: 1}}, []PackageCategoryJoinRow{{PackageID: 1, CategoryID: 1}}),
		PackageKeywords:   NewMemTable([]PackageKeywordJoinRow{{PackageID: 1, KeywordID: 1}}, []PackageKeywordJoinRow{{PackageID: 1, KeywordID: 1}}),
		PackageDownloads:  NewMemTable([]PackageDownloadRow{{PackageID: 1, Downloads: 500}}, []PackageDownloadRow{{PackageID: 1, Downloads: 500}}),
		VersionDownloads:  NewMemTable([]VersionDownloadRow{{VersionID: 11, Date: created.Add(200 * 24 * time.Hour), Downloads: 42}}, []VersionDownloadRow{{VersionID: 11, Date: created.Add(200 * 24 * time.Hour), Downloads: 42}}),
	}
}

func mustRef(t *testing.T, name, version string) specs.PackageRef {
	t.Helper()
	if version == "" {
		return specs.PackageRef{Name: name}
	}
	v := mustVersionForTest(t, version)
	return specs.PackageRef{Name: name, Version: v}
}

func TestQueryResolvesLatestVersionBySemver(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	p.Now = func() time.Time { return time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC) }

	results := p.Query([]specs.PackageRef{mustRef(t, "demo", "")})
	require.Len(t, results, 1)

	res := results[0].Result
	require.Equal(t, specs.TagFound, res.Tag)
	assert.Equal(t, "1.2.3", results[0].Spec.Version.String())
	assert.Equal(t, "a demo package", res.Value.Description)
	require.NotNil(t, results[0].Spec.RepoSpec)
	assert.Equal(t, "acme", results[0].Spec.RepoSpec.Owner)
	assert.Equal(t, uint64(500), res.Value.TotalDownloads)
	assert.Equal(t, []string{"alice"}, res.Value.Owners)
	assert.Equal(t, []string{"parsing"}, res.Value.Categories)
	assert.Equal(t, []string{"cli"}, res.Value.Keywords)
	assert.Equal(t, uint64(1), res.Value.Dependents)
}

func TestQueryResolvesPinnedVersion(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	results := p.Query([]specs.PackageRef{mustRef(t, "demo", "1.0.0")})
	require.Len(t, results, 1)
	require.Equal(t, specs.TagFound, results[0].Result.Tag)
	assert.Equal(t, "old demo", results[0].Result.Value.Description)
}

func TestQueryUnknownVersionIsVersionNotFound(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	results := p.Query([]specs.PackageRef{mustRef(t, "demo", "9.9.9")})
	require.Len(t, results, 1)
	assert.Equal(t, specs.TagVersionNotFound, results[0].Result.Tag)
}

func TestQueryUnknownNameIsPackageNotFoundWithSuggestion(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	results := p.Query([]specs.PackageRef{mustRef(t, "others", "")})
	require.Len(t, results, 1)
	require.Equal(t, specs.TagPackageNotFound, results[0].Result.Tag)
	assert.Contains(t, results[0].Result.Similar, "other")
}

func TestQuerySuppressesSuggestionsWhenDisabled(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	p.WantSuggestions = false
	results := p.Query([]specs.PackageRef{mustRef(t, "others", "")})
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Result.Similar)
}

func TestQueryDedupesRepeatedName(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	results := p.Query([]specs.PackageRef{mustRef(t, "demo", ""), mustRef(t, "demo", "1.0.0")})
	require.Len(t, results, 2)
	assert.Equal(t, specs.TagFound, results[0].Result.Tag)
	assert.Equal(t, specs.TagFound, results[1].Result.Tag)
	assert.NotEqual(t, results[0].Spec.Version.String(), results[1].Spec.Version.String())
}

func TestMonthlyDownloadSeriesIsSortedAscending(t *testing.T) {
	p := NewProvider(fixtureProviderTables())
	results := p.Query([]specs.PackageRef{mustRef(t, "demo", "")})
	require.Len(t, results, 1)
	series := results[0].Result.Value.MonthlyDownloadsPkg
	for i := 1; i < len(series); i++ {
		assert.True(t, series[i-1].Month.Before(series[i].Month))
	}
}
