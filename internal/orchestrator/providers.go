package orchestrator

import (
	"context"
	"sync"

	"aprz.dev/aprz/internal/cache"
	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/specs"
)

// collectHosting dedups specList by repository (GroupByRepo) and runs
// one Collector.Collect batch per host, then broadcasts each repo's
// result to every spec sharing that repository — packages in the same
// repo always share hosting facts.
func (o *Orchestrator) collectHosting(ctx context.Context, specList []specs.PackageSpec) map[string]specs.ProviderResult[facts.HostingData] {
	out := make(map[string]specs.ProviderResult[facts.HostingData])

	byRepo := specs.GroupByRepo(specList)
	if len(byRepo) == 0 {
		for _, s := range specList {
			out[s.String()] = specs.Unavailable[facts.HostingData]("no repository on record")
		}
		return out
	}

	var needed []specs.RepoSpec
	cached := make(map[specs.RepoSpec]facts.HostingData)
	for repo := range byRepo {
		res := cache.Load[facts.HostingData](o.hostingCache, hostingCacheKey(repo))
		switch res.Tag {
		case cache.TagData:
			cached[repo] = res.Value
		case cache.TagNoData:
			for _, s := range byRepo[repo] {
				out[s.String()] = specs.Unavailable[facts.HostingData](res.Reason)
			}
		default:
			needed = append(needed, repo)
		}
	}

	if len(needed) > 0 {
		for _, rr := range o.hostingClient.Collect(ctx, needed) {
			if rr.Result.Tag == specs.TagFound {
				if err := cache.Save(o.hostingCache, hostingCacheKey(rr.Repo), rr.Result.Value); err != nil {
					_ = err // best-effort: a cache write failure never blocks returning fresh data
				}
			} else if rr.Result.Tag == specs.TagUnavailable {
				_ = o.hostingCache.SaveNoData(hostingCacheKey(rr.Repo), rr.Result.Reason)
			}
			for _, s := range byRepo[rr.Repo] {
				out[s.String()] = rr.Result
			}
		}
	}

	for repo, data := range cached {
		for _, s := range byRepo[repo] {
			out[s.String()] = specs.Found(data)
		}
	}

	return out
}

// collectCodebase mirrors collectHosting's per-repo dedup, using the
// repository fetcher + source analyzer instead of the hosting API.
func (o *Orchestrator) collectCodebase(ctx context.Context, specList []specs.PackageSpec) map[string]specs.ProviderResult[facts.CodebaseData] {
	out := make(map[string]specs.ProviderResult[facts.CodebaseData])

	byRepo := specs.GroupByRepo(specList)
	if len(byRepo) == 0 {
		for _, s := range specList {
			out[s.String()] = specs.Unavailable[facts.CodebaseData]("no repository on record")
		}
		return out
	}

	type repoJob struct {
		repo specs.RepoSpec
		pkgs []specs.PackageSpec
	}
	jobs := make([]repoJob, 0, len(byRepo))
	for repo, pkgs := range byRepo {
		if res := cache.Load[facts.CodebaseData](o.codebaseCache, codebaseCacheKey(repo)); res.Tag == cache.TagData {
			for _, s := range pkgs {
				out[s.String()] = specs.Found(res.Value)
			}
			continue
		}
		jobs = append(jobs, repoJob{repo: repo, pkgs: pkgs})
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		go func() {
			defer wg.Done()
			data, err := o.codebaseScanner.Scan(ctx, job.repo, job.pkgs)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res := specs.Errored[facts.CodebaseData](err)
				for _, s := range job.pkgs {
					out[s.String()] = res
				}
				return
			}
			if err := cache.Save(o.codebaseCache, codebaseCacheKey(job.repo), data); err != nil {
				_ = err
			}
			for _, s := range job.pkgs {
				out[s.String()] = specs.Found(data)
			}
		}()
	}
	wg.Wait()

	return out
}

// collectAdvisories, collectCoverage, and collectDocs are stub
// providers: spec.md's dataflow narrative and PackageFacts both name
// these concerns, but no component describes their wire format or
// source. They report Unavailable so PackageFacts.Complete() still
// gates correctly while leaving an honest, non-fabricated placeholder
// rather than inventing an advisory database schema or a coverage API
// that doesn't exist in the specification.
func (o *Orchestrator) collectAdvisories(specList []specs.PackageSpec) map[string]specs.ProviderResult[facts.AdvisoryData] {
	out := make(map[string]specs.ProviderResult[facts.AdvisoryData])
	for _, s := range specList {
		out[s.String()] = specs.Unavailable[facts.AdvisoryData]("advisory database not configured")
	}
	return out
}

func (o *Orchestrator) collectCoverage(specList []specs.PackageSpec) map[string]specs.ProviderResult[facts.CoverageData] {
	out := make(map[string]specs.ProviderResult[facts.CoverageData])
	for _, s := range specList {
		out[s.String()] = specs.Unavailable[facts.CoverageData]("coverage source not configured")
	}
	return out
}

func (o *Orchestrator) collectDocs(specList []specs.PackageSpec) map[string]specs.ProviderResult[facts.DocsData] {
	out := make(map[string]specs.ProviderResult[facts.DocsData])
	for _, s := range specList {
		out[s.String()] = specs.Unavailable[facts.DocsData]("documentation build not configured")
	}
	return out
}

func hostingCacheKey(r specs.RepoSpec) string {
	return sanitizeKey(r.Host) + "/" + sanitizeKey(r.Owner) + "/" + sanitizeKey(r.Repo) + ".json"
}

func codebaseCacheKey(r specs.RepoSpec) string {
	return hostingCacheKey(r)
}
