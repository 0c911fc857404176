package metrics

import (
	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/specs"
)

func strList(ss []string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return List(vs)
}

func monthlySeries(mc []facts.MonthlyCount) Value {
	vs := make([]Value, len(mc))
	for i, m := range mc {
		vs[i] = List([]Value{DateTime(m.Month), UInt(m.Count)})
	}
	return List(vs)
}

// Definitions is the process-wide, immutable metric namespace. Each
// entry's Extractor reads either the resolved spec (crate.name,
// crate.version) or exactly one provider's ProviderResult; a
// provider-backed extractor returns ok=false when that provider's data
// isn't Found, letting Flatten fall back to Default.
var Definitions = []Def{
	{
		Name: "crate.name", Description: "Name of the package", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) { return String(pf.Spec.Name), true },
		Default:   func() (Value, bool) { return String(""), true },
	},
	{
		Name: "crate.version", Description: "Resolved semantic version", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.Spec.Version == nil {
				return Value{}, false
			}
			return String(pf.Spec.Version.String()), true
		},
		Default: func() (Value, bool) { return String(""), true },
	},
	{
		Name: "crate.description", Description: "Package description", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return String(pf.RegistryData.Value.Description), true
		},
		Default: func() (Value, bool) { return String(""), true },
	},
	{
		Name: "crate.license", Description: "SPDX license identifier", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return String(pf.RegistryData.Value.License), true
		},
		Default: func() (Value, bool) { return String(""), true },
	},
	{
		Name: "crate.categories", Description: "Package categories", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return strList(pf.RegistryData.Value.Categories), true
		},
		Default: func() (Value, bool) { return List(nil), true },
	},
	{
		Name: "crate.keywords", Description: "Package keywords", Category: CategoryMetadata,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return strList(pf.RegistryData.Value.Keywords), true
		},
		Default: func() (Value, bool) { return List(nil), true },
	},
	{
		Name: "usage.downloads", Description: "Total recorded downloads", Category: CategoryUsage,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.RegistryData.Value.TotalDownloads), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "usage.dependents", Description: "Number of distinct packages depending on this one", Category: CategoryUsage,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.RegistryData.Value.Dependents), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "usage.monthly_downloads", Description: "Monthly download series for the requested version", Category: CategoryUsage,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.RegistryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return monthlySeries(pf.RegistryData.Value.MonthlyDownloadsVer), true
		},
		Default: func() (Value, bool) { return List(nil), true },
	},
	{
		Name: "community.stars", Description: "Hosting-provider stargazer count", Category: CategoryCommunity,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.HostingData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.HostingData.Value.Stargazers), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "community.forks", Description: "Hosting-provider fork count", Category: CategoryCommunity,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.HostingData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.HostingData.Value.Forks), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "community.open_issues", Description: "Currently open issue count", Category: CategoryCommunity,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.HostingData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.HostingData.Value.OpenIssues.Total), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "trustworthiness.contributors", Description: "Unique contributor count", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.CodebaseData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.CodebaseData.Value.ContributorCount), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "trustworthiness.commits_last_365d", Description: "Commits in the trailing year", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.CodebaseData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.CodebaseData.Value.Commits.Last365d), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "trustworthiness.ci_detected", Description: "Whether a CI workflow configuration was found", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.CodebaseData.Tag != specs.TagFound {
				return Value{}, false
			}
			return Bool(pf.CodebaseData.Value.WorkflowsDetected), true
		},
		Default: func() (Value, bool) { return Bool(false), true },
	},
	{
		Name: "trustworthiness.unsafe_constructs", Description: "Count of unsafe syntactic constructs", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.CodebaseData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.CodebaseData.Value.UnsafeConstructs), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
	{
		Name: "docs.documentation", Description: "URL to the package's documentation", Category: CategoryDocumentation,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.DocsData.Tag != specs.TagFound {
				return Value{}, false
			}
			return String(pf.DocsData.Value.DocumentationURL), true
		},
		Default: func() (Value, bool) { return String(""), true },
	},
	{
		Name: "docs.public_api_coverage_percentage", Description: "Percentage of public API elements with documentation", Category: CategoryDocumentation,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.DocsData.Tag != specs.TagFound || pf.DocsData.Value.Metrics == nil {
				return Value{}, false
			}
			m := pf.DocsData.Value.Metrics
			total := m.PublicAPIElements
			if total == 0 {
				return Float(0), true
			}
			documented := total - m.UndocumentedElements
			return Float(100 * float64(documented) / float64(total)), true
		},
		Default: func() (Value, bool) { return Float(0), true },
	},
	{
		Name: "coverage.line_percentage", Description: "Line coverage percentage", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.CoverageData.Tag != specs.TagFound {
				return Value{}, false
			}
			return Float(pf.CoverageData.Value.LinePercent), true
		},
		Default: func() (Value, bool) { return Float(0), true },
	},
	{
		Name: "advisory.open_count", Description: "Open security advisory count", Category: CategoryTrustworthiness,
		Extractor: func(pf *facts.PackageFacts) (Value, bool) {
			if pf.AdvisoryData.Tag != specs.TagFound {
				return Value{}, false
			}
			return UInt(pf.AdvisoryData.Value.OpenAdvisories), true
		},
		Default: func() (Value, bool) { return UInt(0), true },
	},
}

// Flatten maps a PackageFacts record through Definitions into a flat
// metric list, the input to the expression evaluator.
func Flatten(pf *facts.PackageFacts) []Metric {
	out := make([]Metric, 0, len(Definitions))
	for i := range Definitions {
		def := &Definitions[i]
		var val *Value
		if v, ok := def.Extractor(pf); ok {
			val = &v
		} else if v, ok := def.Default(); ok {
			val = &v
		}
		out = append(out, Metric{Def: def, Value: val})
	}
	return out
}
