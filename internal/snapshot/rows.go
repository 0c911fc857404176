package snapshot

import "time"

// Row shapes for the ~12 columnar tables the snapshot scan consumes.
// Lean variants carry only what a rejection scan needs; Full variants
// are materialized on match.

type PackageLean struct {
	ID   uint64
	Name string
}

type PackageFull struct {
	ID   uint64
	Name string
}

type VersionLean struct {
	ID        uint64
	PackageID uint64
}

type VersionFull struct {
	ID            uint64
	PackageID     uint64
	Num           string // raw semver string
	License       string
	Description   string
	Homepage      string
	Documentation string
	Repository    string
	RustVersion   string
	Edition       string
	Features      []string
	CreatedAt     time.Time
}

type DependencyLean struct {
	PackageID       uint64 // the depended-upon package
	VersionID       uint64 // the referencing version
}

type DependencyFull struct {
	PackageID uint64
	VersionID uint64
}

type CategoryRow struct {
	ID   uint64
	Slug string
}

type KeywordRow struct {
	ID   uint64
	Word string
}

type UserRow struct {
	ID    uint64
	Login string
}

type TeamRow struct {
	ID   uint64
	Name string
}

type OwnerJoinRow struct {
	PackageID uint64
	OwnerID   uint64
	IsTeam    bool
}

type PackageCategoryJoinRow struct {
	PackageID  uint64
	CategoryID uint64
}

type PackageKeywordJoinRow struct {
	PackageID uint64
	KeywordID uint64
}

type PackageDownloadRow struct {
	PackageID uint64
	Downloads uint64
}

type VersionDownloadRow struct {
	VersionID uint64
	Date      time.Time
	Downloads uint64
}

// Tables bundles every table the query engine scans. A concrete
// Manager constructs this after opening/mapping the on-disk files; the
// query engine itself never knows how a Table is backed.
type Tables struct {
	Packages          Table[PackageLean, PackageFull]
	Versions          Table[VersionLean, VersionFull]
	Dependencies      Table[DependencyLean, DependencyFull]
	Categories        Table[CategoryRow, CategoryRow]
	Keywords          Table[KeywordRow, KeywordRow]
	Users             Table[UserRow, UserRow]
	Teams             Table[TeamRow, TeamRow]
	Owners            Table[OwnerJoinRow, OwnerJoinRow]
	PackageCategories Table[PackageCategoryJoinRow, PackageCategoryJoinRow]
	PackageKeywords   Table[PackageKeywordJoinRow, PackageKeywordJoinRow]
	PackageDownloads  Table[PackageDownloadRow, PackageDownloadRow]
	VersionDownloads  Table[VersionDownloadRow, VersionDownloadRow]
}
