// Package facts defines the per-package fact record assembled by the
// orchestrator (component K) from the outputs of every provider, and
// the data shapes each provider produces.
package facts

import (
	"time"

	"aprz.dev/aprz/internal/specs"
)

// MonthlyCount is one point in a monthly download/commit series, the
// first-of-month date paired with the count for that month.
type MonthlyCount struct {
	Month time.Time
	Count uint64
}

// RegistryData is the output of the snapshot query engine (component D).
type RegistryData struct {
	Owners             []string
	Categories         []string
	Keywords           []string
	Features           []string
	Description        string
	License             string
	Repository           string
	Homepage             string
	MinimumRust          string
	RustEdition          string
	TotalDownloads       uint64
	Dependents           uint64
	VersionsLast90Days   uint64
	VersionsLast180Days  uint64
	VersionsLast365Days  uint64
	MonthlyDownloadsVer  []MonthlyCount
	MonthlyDownloadsPkg  []MonthlyCount
}

// AgeSummary summarizes a distribution of ages (in days) as the five
// statistics the hosting collector derives for issue/PR age.
type AgeSummary struct {
	Avg float64
	P50 float64
	P75 float64
	P90 float64
	P95 float64
}

// WindowCounts counts occurrences in trailing 90/180/365-day windows
// plus an all-time total.
type WindowCounts struct {
	Total    uint64
	Last90d  uint64
	Last180d uint64
	Last365d uint64
}

// HostingData is the output of the hosting collector (component H).
type HostingData struct {
	Stargazers  uint64
	Forks       uint64
	Subscribers uint64

	OpenIssues   WindowCounts
	ClosedIssues WindowCounts
	OpenPRs      WindowCounts
	ClosedPRs    WindowCounts
	MergedPRs    WindowCounts

	OpenIssueAge   AgeSummary
	OpenPRAge      AgeSummary
	ClosedIssueAge AgeSummary
	MergedPRAge    AgeSummary
}

// CodebaseData is the output of the repository fetcher + source
// analyzer (components E/F).
type CodebaseData struct {
	ProductionLines   uint64
	TestLines         uint64
	CommentLines      uint64
	UnsafeConstructs  uint64
	ExampleCount      uint64
	TransitiveDeps    uint64
	WorkflowsDetected bool
	MiriDetected      bool
	ClippyDetected    bool
	ContributorCount  uint64
	Commits           WindowCounts
	LastCommit        time.Time
	HasParseErrors    bool
}

// DocMetrics is the parsed payload of a documentation-coverage report.
type DocMetrics struct {
	PublicAPIElements     uint64
	UndocumentedElements  uint64
}

// DocsData is the output of the documentation analyzer.
type DocsData struct {
	DocumentationURL string
	Metrics          *DocMetrics // nil when the report format is unrecognized
}

// CoverageData is the output of the coverage fetcher.
type CoverageData struct {
	LinePercent float64
}

// AdvisoryData is the output of the advisory-database scanner.
type AdvisoryData struct {
	OpenAdvisories uint64
}

// PackageFacts is the fully merged record for one resolved package. Each
// field is a ProviderResult — callers switch on Tag, never on presence
// of a pointer.
type PackageFacts struct {
	Spec         specs.PackageSpec
	CollectedAt  time.Time
	RegistryData specs.ProviderResult[RegistryData]
	HostingData  specs.ProviderResult[HostingData]
	AdvisoryData specs.ProviderResult[AdvisoryData]
	CodebaseData specs.ProviderResult[CodebaseData]
	CoverageData specs.ProviderResult[CoverageData]
	DocsData     specs.ProviderResult[DocsData]
}

// Complete reports whether every subfield has reached a terminal state
// (Found, Unavailable, PackageNotFound, or VersionNotFound) — the gate
// the orchestrator uses to decide whether a record may be cached.
func (f PackageFacts) Complete() bool {
	return f.RegistryData.IsComplete() &&
		f.HostingData.IsComplete() &&
		f.AdvisoryData.IsComplete() &&
		f.CodebaseData.IsComplete() &&
		f.CoverageData.IsComplete() &&
		f.DocsData.IsComplete()
}
