package snapshot

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"

	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/specs"
)

// Provider answers batch queries against a set of open, shared Tables.
// Multiple concurrent queries may share one Provider/Tables pair; the
// tables are read-only after Manager.Open returns.
type Provider struct {
	Tables          *Tables
	Now             func() time.Time
	WantSuggestions bool
}

func NewProvider(t *Tables) *Provider {
	return &Provider{Tables: t, Now: time.Now, WantSuggestions: true}
}

// QueryResult is one resolved outcome for one input PackageRef.
type QueryResult struct {
	Ref    specs.PackageRef
	Spec   specs.PackageSpec
	Result specs.ProviderResult[facts.RegistryData]
}

// perPackageAccumulator mirrors the original's PerCrateData: everything
// phases 1-7 accumulate for one matched package before assembly.
type perPackageAccumulator struct {
	packageID  uint64
	name       string
	owners     []string
	categories []string
	keywords   []string
	downloads  uint64

	versionsLast90  uint64
	versionsLast180 uint64
	versionsLast365 uint64

	dependents uint64

	// phase 4 state: the resolved version row for a pinned request, or
	// the best (max-semver) version row for a "needs latest" request.
	pinnedVersion map[string]VersionFull // by requested version string
	latestVersion *VersionFull

	monthlyPkgDownloads map[string]uint64 // "YYYY-MM" -> downloads, across all versions
	monthlyVerDownloads map[uint64]map[string]uint64
}

// Query runs the eight-phase scan for refs and returns one QueryResult
// per ref, in the same order.
func (p *Provider) Query(refs []specs.PackageRef) []QueryResult {
	// Phase 1: name resolution + accumulator allocation.
	wanted := make(map[string]*perPackageAccumulator, len(refs))
	var allNames []string
	p.Tables.Packages.IterLean(func(_ int, row PackageLean) bool {
		allNames = append(allNames, row.Name)
		return true
	})

	for _, ref := range refs {
		if _, ok := wanted[ref.Name]; ok {
			continue
		}
		wanted[ref.Name] = nil // marker: requested, not yet resolved
	}

	packageIDByName := make(map[string]uint64)
	nameByPackageID := make(map[uint64]string)
	p.Tables.Packages.IterLean(func(idx int, row PackageLean) bool {
		if _, requested := wanted[row.Name]; requested {
			full := p.Tables.Packages.Get(idx)
			acc := &perPackageAccumulator{
				packageID:           full.ID,
				name:                full.Name,
				pinnedVersion:       make(map[string]VersionFull),
				monthlyPkgDownloads: make(map[string]uint64),
				monthlyVerDownloads: make(map[uint64]map[string]uint64),
			}
			wanted[row.Name] = acc
			packageIDByName[row.Name] = full.ID
			nameByPackageID[full.ID] = row.Name
		}
		return true
	})

	// Phase 2: partition requests into pinned vs. needs-latest.
	pinnedRequests := make(map[string]map[string]bool) // name -> set of requested version strings
	needsLatest := make(map[string]bool)
	for _, ref := range refs {
		if ref.Version != nil {
			if pinnedRequests[ref.Name] == nil {
				pinnedRequests[ref.Name] = make(map[string]bool)
			}
			pinnedRequests[ref.Name][ref.Version.String()] = true
		} else {
			needsLatest[ref.Name] = true
		}
	}

	// Phase 3: dependency discovery.
	dependedUpon := make(map[uint64]map[uint64]bool) // depended-upon package id -> set<referencing version id>
	p.Tables.Dependencies.IterLean(func(idx int, row DependencyLean) bool {
		if _, ok := nameByPackageID[row.PackageID]; ok {
			if dependedUpon[row.PackageID] == nil {
				dependedUpon[row.PackageID] = make(map[uint64]bool)
			}
			dependedUpon[row.PackageID][row.VersionID] = true
		}
		return true
	})

	// Phase 4: versions scan — pinned resolution, latest resolution,
	// trailing-window counts, version_id -> package_id for the requested
	// packages (phase 7), and version_id -> package_id for phase 3's
	// referencing versions (phase 8).
	versionIDToPackageID := make(map[uint64]uint64)
	referencingVersionToPackage := make(map[uint64]uint64)
	referencingVersions := make(map[uint64]bool)
	for _, versionIDs := range dependedUpon {
		for vid := range versionIDs {
			referencingVersions[vid] = true
		}
	}
	now := p.now()
	p.Tables.Versions.IterLean(func(idx int, row VersionLean) bool {
		if referencingVersions[row.ID] {
			referencingVersionToPackage[row.ID] = row.PackageID
		}
		name, known := nameByPackageID[row.PackageID]
		if !known {
			return true
		}
		versionIDToPackageID[row.ID] = row.PackageID

		full := p.Tables.Versions.Get(idx)
		acc := wanted[name]

		age := now.Sub(full.CreatedAt)
		if age <= 90*24*time.Hour {
			acc.versionsLast90++
		}
		if age <= 180*24*time.Hour {
			acc.versionsLast180++
		}
		if age <= 365*24*time.Hour {
			acc.versionsLast365++
		}

		if set, ok := pinnedRequests[name]; ok {
			if set[full.Num] {
				acc.pinnedVersion[full.Num] = full
			}
		}
		if needsLatest[name] {
			if acc.latestVersion == nil || isNewerSemver(full.Num, acc.latestVersion.Num) {
				f := full
				acc.latestVersion = &f
			}
		}
		return true
	})

	// Phase 5: lookup tables, fully materialized.
	categoryByID := make(map[uint64]string)
	p.Tables.Categories.IterLean(func(idx int, row CategoryRow) bool {
		categoryByID[row.ID] = row.Slug
		return true
	})
	keywordByID := make(map[uint64]string)
	p.Tables.Keywords.IterLean(func(idx int, row KeywordRow) bool {
		keywordByID[row.ID] = row.Word
		return true
	})
	userByID := make(map[uint64]string)
	p.Tables.Users.IterLean(func(idx int, row UserRow) bool {
		userByID[row.ID] = row.Login
		return true
	})
	teamByID := make(map[uint64]string)
	p.Tables.Teams.IterLean(func(idx int, row TeamRow) bool {
		teamByID[row.ID] = row.Name
		return true
	})

	// Phase 6: join tables.
	p.Tables.Owners.IterLean(func(_ int, row OwnerJoinRow) bool {
		name, known := nameByPackageID[row.PackageID]
		if !known {
			return true
		}
		acc := wanted[name]
		if row.IsTeam {
			acc.owners = append(acc.owners, teamByID[row.OwnerID])
		} else {
			acc.owners = append(acc.owners, userByID[row.OwnerID])
		}
		return true
	})
	p.Tables.PackageCategories.IterLean(func(_ int, row PackageCategoryJoinRow) bool {
		name, known := nameByPackageID[row.PackageID]
		if !known {
			return true
		}
		wanted[name].categories = append(wanted[name].categories, categoryByID[row.CategoryID])
		return true
	})
	p.Tables.PackageKeywords.IterLean(func(_ int, row PackageKeywordJoinRow) bool {
		name, known := nameByPackageID[row.PackageID]
		if !known {
			return true
		}
		wanted[name].keywords = append(wanted[name].keywords, keywordByID[row.KeywordID])
		return true
	})

	// Phase 7: downloads.
	p.Tables.PackageDownloads.IterLean(func(_ int, row PackageDownloadRow) bool {
		name, known := nameByPackageID[row.PackageID]
		if !known {
			return true
		}
		wanted[name].downloads += row.Downloads
		return true
	})
	p.Tables.VersionDownloads.IterLean(func(_ int, row VersionDownloadRow) bool {
		pkgID, known := versionIDToPackageID[row.VersionID]
		if !known {
			return true
		}
		name := nameByPackageID[pkgID]
		acc := wanted[name]
		key := row.Date.Format("2006-01")
		acc.monthlyPkgDownloads[key] += row.Downloads
		if acc.monthlyVerDownloads[row.VersionID] == nil {
			acc.monthlyVerDownloads[row.VersionID] = make(map[string]uint64)
		}
		acc.monthlyVerDownloads[row.VersionID][key] += row.Downloads
		return true
	})

	// Phase 8: dependent counting — unique referencing packages per
	// depended-upon package.
	for pkgID, versionIDs := range dependedUpon {
		referencingPackages := make(map[uint64]bool)
		for vid := range versionIDs {
			if refPkg, ok := referencingVersionToPackage[vid]; ok {
				referencingPackages[refPkg] = true
			}
		}
		if name, ok := nameByPackageID[pkgID]; ok {
			wanted[name].dependents = uint64(len(referencingPackages))
		}
	}

	return p.assemble(refs, wanted, allNames)
}

func (p *Provider) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func isNewerSemver(candidate, current string) bool {
	cv, err1 := semver.NewVersion(candidate)
	kv, err2 := semver.NewVersion(current)
	if err1 != nil || err2 != nil {
		return candidate > current
	}
	return cv.GreaterThan(kv)
}

func (p *Provider) assemble(refs []specs.PackageRef, wanted map[string]*perPackageAccumulator, allNames []string) []QueryResult {
	out := make([]QueryResult, 0, len(refs))

	for _, ref := range refs {
		acc := wanted[ref.Name]
		if acc == nil {
			var similar []string
			if p.WantSuggestions {
				similar = suggestNames(ref.Name, allNames)
			}
			out = append(out, QueryResult{Ref: ref, Result: specs.PackageNotFound[facts.RegistryData](similar)})
			continue
		}

		var versionRow VersionFull
		if ref.Version != nil {
			vr, ok := acc.pinnedVersion[ref.Version.String()]
			if !ok {
				out = append(out, QueryResult{Ref: ref, Result: specs.VersionNotFound[facts.RegistryData]()})
				continue
			}
			versionRow = vr
		} else {
			if acc.latestVersion == nil {
				out = append(out, QueryResult{Ref: ref, Result: specs.VersionNotFound[facts.RegistryData]()})
				continue
			}
			versionRow = *acc.latestVersion
		}

		version, err := semver.NewVersion(versionRow.Num)
		if err != nil {
			out = append(out, QueryResult{Ref: ref, Result: specs.Errored[facts.RegistryData](err)})
			continue
		}

		spec := specs.PackageSpec{Name: acc.name, Version: version}
		if rs, ok := specs.ParseRepoURL(versionRow.Repository); ok {
			spec.RepoSpec = &rs
		}

		data := facts.RegistryData{
			Owners:              acc.owners,
			Categories:          acc.categories,
			Keywords:            acc.keywords,
			Features:            versionRow.Features,
			Description:         versionRow.Description,
			License:             versionRow.License,
			Repository:          versionRow.Repository,
			Homepage:            versionRow.Homepage,
			MinimumRust:         versionRow.RustVersion,
			RustEdition:         versionRow.Edition,
			TotalDownloads:      acc.downloads,
			Dependents:          acc.dependents,
			VersionsLast90Days:  acc.versionsLast90,
			VersionsLast180Days: acc.versionsLast180,
			VersionsLast365Days: acc.versionsLast365,
			MonthlyDownloadsPkg: monthlyMapToSeries(acc.monthlyPkgDownloads),
		}
		if perVersion, ok := acc.monthlyVerDownloads[versionRow.ID]; ok {
			data.MonthlyDownloadsVer = monthlyMapToSeries(perVersion)
		}

		out = append(out, QueryResult{Ref: ref, Spec: spec, Result: specs.Found(data)})
	}

	return out
}

// monthlyMapToSeries converts a "YYYY-MM" -> count map into a sorted,
// ascending-by-month slice of (first-of-month, count) points.
func monthlyMapToSeries(m map[string]uint64) []facts.MonthlyCount {
	out := make([]facts.MonthlyCount, 0, len(m))
	for key, count := range m {
		t, err := time.Parse("2006-01", key)
		if err != nil {
			continue
		}
		out = append(out, facts.MonthlyCount{Month: t, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}
