// Package orchestrator implements component K: it wires the snapshot
// query engine, repository fetcher/analyzer, hosting collector, and the
// auxiliary providers together into one Collect call, gated by the
// on-disk facts cache and the cross-process advisory lock.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"aprz.dev/aprz/internal/alog"
	"aprz.dev/aprz/internal/cache"
	"aprz.dev/aprz/internal/codebase"
	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/hosting"
	"aprz.dev/aprz/internal/snapshot"
	"aprz.dev/aprz/internal/specs"
)

// Options configures a new Orchestrator. TTLs are independent per
// concern, matching the original's per-provider cache lifetimes.
type Options struct {
	CacheDir      string
	RepoCacheRoot string
	SnapshotURL   string
	GitHubToken   string
	CodebergToken string

	SnapshotTTL time.Duration
	HostingTTL  time.Duration
	CodebaseTTL time.Duration
	CoverageTTL time.Duration
	AdvisoryTTL time.Duration
	DocsTTL     time.Duration
	FactsTTL    time.Duration
	IgnoreCache bool
}

// Option configures an Orchestrator at construction, the same
// functional-options idiom the teacher's service packages use for
// "opts ...service.Option[*Service]" construction — generalized here to
// an Options struct since the orchestrator has enough independent knobs
// (per-concern TTLs, two hosting tokens, cache/repo roots) that a flat
// option list would otherwise need a dozen With* functions duplicating
// Options' fields one-for-one.
type Option func(*Options)

func WithCacheDir(dir string) Option      { return func(o *Options) { o.CacheDir = dir } }
func WithRepoCacheRoot(dir string) Option { return func(o *Options) { o.RepoCacheRoot = dir } }
func WithSnapshotURL(url string) Option   { return func(o *Options) { o.SnapshotURL = url } }
func WithGitHubToken(token string) Option { return func(o *Options) { o.GitHubToken = token } }
func WithCodebergToken(token string) Option {
	return func(o *Options) { o.CodebergToken = token }
}
func WithIgnoreCache(v bool) Option { return func(o *Options) { o.IgnoreCache = v } }

// WithTTLs overrides the per-concern cache lifetimes; a zero duration
// leaves withDefaults' fallback in place for that concern.
func WithTTLs(snapshot, hosting, codebase, coverage, advisory, docs, facts time.Duration) Option {
	return func(o *Options) {
		o.SnapshotTTL = snapshot
		o.HostingTTL = hosting
		o.CodebaseTTL = codebase
		o.CoverageTTL = coverage
		o.AdvisoryTTL = advisory
		o.DocsTTL = docs
		o.FactsTTL = facts
	}
}

func (o Options) withDefaults() Options {
	if o.SnapshotTTL == 0 {
		o.SnapshotTTL = 24 * time.Hour
	}
	if o.HostingTTL == 0 {
		o.HostingTTL = 6 * time.Hour
	}
	if o.CodebaseTTL == 0 {
		o.CodebaseTTL = 24 * time.Hour
	}
	if o.CoverageTTL == 0 {
		o.CoverageTTL = 24 * time.Hour
	}
	if o.AdvisoryTTL == 0 {
		o.AdvisoryTTL = 6 * time.Hour
	}
	if o.DocsTTL == 0 {
		o.DocsTTL = 24 * time.Hour
	}
	if o.FactsTTL == 0 {
		o.FactsTTL = 365 * 24 * time.Hour // effectively "until min_time says otherwise"
	}
	return o
}

// Orchestrator holds one open snapshot, one lock, and a cache per
// concern. It is not safe to construct two Orchestrators over the same
// CacheDir concurrently — New fails fast if the lock is already held.
type Orchestrator struct {
	opts Options

	lock *cache.Lock

	snapshotMgr *snapshot.Manager
	tables      *snapshot.Tables
	registry    *snapshot.Provider

	hostingClient   *hosting.Collector
	codebaseScanner *codebase.Scanner

	hostingCache  *cache.Cache
	codebaseCache *cache.Cache
	coverageCache *cache.Cache
	advisoryCache *cache.Cache
	docsCache     *cache.Cache
	factsCache    *cache.Cache

	now func() time.Time
}

// New acquires the cache lock, opens the snapshot, and constructs every
// provider. Callers must call Close when done, which releases the lock.
func New(ctx context.Context, optFns ...Option) (*Orchestrator, error) {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	opts = opts.withDefaults()

	lock, err := cache.AcquireLock(opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}

	o := &Orchestrator{opts: opts, lock: lock, now: time.Now}

	snapshotMgr := snapshot.NewManager(subdir(opts.CacheDir, "crates"), opts.SnapshotURL, opts.SnapshotTTL)
	tables, err := snapshotMgr.Open(ctx)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("orchestrator: opening snapshot: %w", err)
	}
	o.snapshotMgr = snapshotMgr
	o.tables = tables
	o.registry = snapshot.NewProvider(tables)

	tokens := map[string]string{}
	if opts.GitHubToken != "" {
		tokens["github.com"] = opts.GitHubToken
	}
	if opts.CodebergToken != "" {
		tokens["codeberg.org"] = opts.CodebergToken
	}
	o.hostingClient = hosting.NewCollector(tokens)
	o.codebaseScanner = codebase.NewScanner(opts.RepoCacheRoot)

	o.hostingCache = withIgnore(cache.New(subdir(opts.CacheDir, "hosting"), opts.HostingTTL), opts.IgnoreCache)
	o.codebaseCache = withIgnore(cache.New(subdir(opts.CacheDir, "codebase"), opts.CodebaseTTL), opts.IgnoreCache)
	o.coverageCache = withIgnore(cache.New(subdir(opts.CacheDir, "coverage"), opts.CoverageTTL), opts.IgnoreCache)
	o.advisoryCache = withIgnore(cache.New(subdir(opts.CacheDir, "advisories"), opts.AdvisoryTTL), opts.IgnoreCache)
	o.docsCache = withIgnore(cache.New(subdir(opts.CacheDir, "docs"), opts.DocsTTL), opts.IgnoreCache)
	o.factsCache = withIgnore(cache.New(subdir(opts.CacheDir, "facts"), opts.FactsTTL), opts.IgnoreCache)

	return o, nil
}

func withIgnore(c *cache.Cache, ignore bool) *cache.Cache {
	c.Ignore = ignore
	return c
}

func subdir(root, name string) string {
	return filepath.Join(root, name)
}

// Close releases the cache lock and unmaps the snapshot tables. Safe to
// call once.
func (o *Orchestrator) Close() error {
	_ = o.snapshotMgr.Close()
	return o.lock.Release()
}

// Collect resolves facts for every ref, in the same order, merging
// freshly-collected cache entries with facts already on disk. A ref
// whose cached facts predate the snapshot's own last refresh is treated
// as a cache miss, since the facts could be built on stale registry data.
func (o *Orchestrator) Collect(ctx context.Context, refs []specs.PackageRef) []facts.PackageFacts {
	if len(refs) == 0 {
		return nil
	}

	floor := o.snapshotMgr.SyncTime()

	results := make([]facts.PackageFacts, len(refs))
	resultIdx := make([]int, 0, len(refs)) // position in results that missingRefs[i] fills
	missingRefs := make([]specs.PackageRef, 0, len(refs))

	for i, ref := range refs {
		if pf, ok := o.loadFromCache(ref, floor); ok {
			results[i] = pf
			continue
		}
		resultIdx = append(resultIdx, i)
		missingRefs = append(missingRefs, ref)
	}

	if len(missingRefs) == 0 {
		return results
	}

	queried := o.registry.Query(missingRefs)
	collectedAt := o.now()

	// Build one PackageFacts per query result, seed every auxiliary
	// field to the same placeholder the registry lookup resolved to
	// (PackageNotFound/VersionNotFound propagate, Found unlocks the
	// downstream providers), then fan out.
	built := make([]facts.PackageFacts, len(queried))
	for i, qr := range queried {
		built[i] = facts.PackageFacts{
			Spec:         qr.Spec,
			CollectedAt:  collectedAt,
			RegistryData: qr.Result,
			HostingData:  specs.ProviderResult[facts.HostingData]{Tag: qr.Result.Tag, Similar: qr.Result.Similar, Reason: qr.Result.Reason, Err: qr.Result.Err},
			AdvisoryData: specs.ProviderResult[facts.AdvisoryData]{Tag: qr.Result.Tag, Similar: qr.Result.Similar, Reason: qr.Result.Reason, Err: qr.Result.Err},
			CodebaseData: specs.ProviderResult[facts.CodebaseData]{Tag: qr.Result.Tag, Similar: qr.Result.Similar, Reason: qr.Result.Reason, Err: qr.Result.Err},
			CoverageData: specs.ProviderResult[facts.CoverageData]{Tag: qr.Result.Tag, Similar: qr.Result.Similar, Reason: qr.Result.Reason, Err: qr.Result.Err},
			DocsData:     specs.ProviderResult[facts.DocsData]{Tag: qr.Result.Tag, Similar: qr.Result.Similar, Reason: qr.Result.Reason, Err: qr.Result.Err},
		}
	}

	// Deduplicate found specs by identity string before fanning out —
	// two refs resolving to the same package@version must not double
	// the hosting/codebase request volume.
	queryable := make(map[string]specs.PackageSpec)
	for i := range built {
		if built[i].RegistryData.Tag == specs.TagFound {
			queryable[built[i].Spec.String()] = built[i].Spec
		}
	}

	if len(queryable) > 0 {
		specList := make([]specs.PackageSpec, 0, len(queryable))
		for _, s := range queryable {
			specList = append(specList, s)
		}

		// The five auxiliary providers share nothing and are launched
		// together, the analog of the original's tokio::join! over
		// advisory/docs/hosting/codebase/coverage. Each goroutine only
		// ever writes its own result variable, so no further
		// synchronization is needed before reading them after Wait.
		var hostingBySpec map[string]specs.ProviderResult[facts.HostingData]
		var codebaseBySpec map[string]specs.ProviderResult[facts.CodebaseData]
		var advisoryBySpec map[string]specs.ProviderResult[facts.AdvisoryData]
		var coverageBySpec map[string]specs.ProviderResult[facts.CoverageData]
		var docsBySpec map[string]specs.ProviderResult[facts.DocsData]

		var g errgroup.Group
		g.Go(func() error { hostingBySpec = o.collectHosting(ctx, specList); return nil })
		g.Go(func() error { codebaseBySpec = o.collectCodebase(ctx, specList); return nil })
		g.Go(func() error { advisoryBySpec = o.collectAdvisories(specList); return nil })
		g.Go(func() error { coverageBySpec = o.collectCoverage(specList); return nil })
		g.Go(func() error { docsBySpec = o.collectDocs(specList); return nil })
		_ = g.Wait() // every collect* is infallible: failures become per-spec Errored/Unavailable results, never a joined error

		for i := range built {
			key := built[i].Spec.String()
			if built[i].RegistryData.Tag != specs.TagFound {
				continue
			}
			if v, ok := hostingBySpec[key]; ok {
				built[i].HostingData = v
			}
			if v, ok := codebaseBySpec[key]; ok {
				built[i].CodebaseData = v
			}
			if v, ok := advisoryBySpec[key]; ok {
				built[i].AdvisoryData = v
			}
			if v, ok := coverageBySpec[key]; ok {
				built[i].CoverageData = v
			}
			if v, ok := docsBySpec[key]; ok {
				built[i].DocsData = v
			}
		}
	}

	for i, pf := range built {
		// Every log line for this package — cache outcome, completeness
		// breakdown, and anything a provider logged through ctx further
		// up the call chain — carries the package attr via alog's
		// context-propagating handler, not a repeated slog.String at
		// each call site.
		pctx := alog.WithAttrs(ctx, slog.String("package", pf.Spec.String()))

		if pf.Spec.Version == nil {
			slog.DebugContext(pctx, "ref did not resolve to a version, not caching")
		} else if pf.Complete() {
			if err := cache.Save(o.factsCache, factsCacheKey(pf.Spec), pf); err != nil {
				slog.WarnContext(pctx, "could not cache facts", slog.Any("err", err))
			} else {
				slog.DebugContext(pctx, "cached facts")
			}
		} else {
			slog.DebugContext(pctx, "facts incomplete, not caching",
				slog.String("registry", statusStr(pf.RegistryData.Tag)),
				slog.String("hosting", statusStr(pf.HostingData.Tag)),
				slog.String("advisory", statusStr(pf.AdvisoryData.Tag)),
				slog.String("codebase", statusStr(pf.CodebaseData.Tag)),
				slog.String("coverage", statusStr(pf.CoverageData.Tag)),
				slog.String("docs", statusStr(pf.DocsData.Tag)),
			)
		}

		results[resultIdx[i]] = pf
	}

	return results
}

func statusStr(tag specs.ResultTag) string {
	switch tag {
	case specs.TagFound:
		return "found"
	case specs.TagPackageNotFound:
		return "package-not-found"
	case specs.TagVersionNotFound:
		return "version-not-found"
	case specs.TagUnavailable:
		return "unavailable"
	case specs.TagError:
		return "error"
	default:
		return "unknown"
	}
}

func factsCacheKey(spec specs.PackageSpec) string {
	return fmt.Sprintf("%s@%s.json", sanitizeKey(spec.Name), sanitizeKey(spec.Version.String()))
}

func sanitizeKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// loadFromCache returns a cached PackageFacts for ref if one exists and
// was collected no earlier than floor.
func (o *Orchestrator) loadFromCache(ref specs.PackageRef, floor time.Time) (facts.PackageFacts, bool) {
	if ref.Version == nil {
		// A versionless ref always needs a fresh latest-version lookup;
		// nothing on disk can answer "what's current" without querying.
		return facts.PackageFacts{}, false
	}

	spec := specs.PackageSpec{Name: ref.Name, Version: ref.Version}
	res := cache.Load[facts.PackageFacts](o.factsCache, factsCacheKey(spec))
	if res.Tag != cache.TagData {
		return facts.PackageFacts{}, false
	}
	if res.Value.CollectedAt.Before(floor) {
		return facts.PackageFacts{}, false
	}
	return res.Value, true
}
