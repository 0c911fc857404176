package hosting

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"aprz.dev/aprz/internal/aprzerr"
	"aprz.dev/aprz/internal/facts"
	"aprz.dev/aprz/internal/specs"
)

const (
	initialBatchSize        = 16
	maxBatchSize            = 64
	estimatedRequestsPerRepo = 2
	maxRateLimitWait         = time.Hour
	issueLookbackDays        = 365 * 10
	issuePageSize            = 100
	maxIssuePages            = 10

	// maxInFlightPerHost caps concurrent repo fetches within a batch,
	// independent of how large the batch itself has grown — each repo
	// fetch is several HTTP calls (repo info plus paginated issues), so
	// a 64-repo batch should not open 64 connections to one host at once.
	maxInFlightPerHost = 8
)

// hostConfig describes one supported hosting provider.
type hostConfig struct {
	domain        string
	baseURL       string
	useWatchers   bool
}

var supportedHosts = []hostConfig{
	{domain: "github.com", baseURL: "https://api.github.com", useWatchers: false},
	{domain: "codeberg.org", baseURL: "https://codeberg.org/api/v1", useWatchers: true},
}

// Collector fetches hosting data for a set of repositories, adapting
// its concurrency to each provider's live rate-limit feedback.
type Collector struct {
	Tokens map[string]string // host domain -> auth token
	Now    func() time.Time

	clients map[string]*Client
	hosts   map[string]hostConfig
	sem     *semaphore.Weighted
}

func NewCollector(tokens map[string]string) *Collector {
	clients := make(map[string]*Client, len(supportedHosts))
	hosts := make(map[string]hostConfig, len(supportedHosts))
	for _, h := range supportedHosts {
		clients[h.domain] = NewClient(h.baseURL, tokens[h.domain])
		hosts[h.domain] = h
	}
	return &Collector{
		Tokens:  tokens,
		Now:     time.Now,
		clients: clients,
		hosts:   hosts,
		sem:     semaphore.NewWeighted(maxInFlightPerHost),
	}
}

// RepoResult is one resolved outcome for one repository.
type RepoResult struct {
	Repo   specs.RepoSpec
	Result specs.ProviderResult[facts.HostingData]
}

// Collect groups repos by host and fetches hosting data for every
// supported host, one dynamic-batch fetch loop per host; the hosts are
// processed one after another, not concurrently.
func (c *Collector) Collect(ctx context.Context, repos []specs.RepoSpec) []RepoResult {
	byHost := make(map[string][]specs.RepoSpec)
	var unsupported []specs.RepoSpec
	for _, r := range repos {
		if _, ok := c.hosts[r.Host]; ok {
			byHost[r.Host] = append(byHost[r.Host], r)
		} else {
			unsupported = append(unsupported, r)
		}
	}

	var all []RepoResult
	for host, hostRepos := range byHost {
		all = append(all, c.fetchBatch(ctx, host, hostRepos)...)
	}
	for _, r := range unsupported {
		all = append(all, RepoResult{
			Repo:   r,
			Result: specs.Errored[facts.HostingData](fmt.Errorf("hosting: unsupported provider %q: %w", r.Host, aprzerr.ConfigInvalid)),
		})
	}
	return all
}

// fetchBatch runs the dynamic-batch scan for one host: an initial
// batch of 16 repos, growing or shrinking toward remaining-quota/2
// (clamped [1,64]) as rate-limit headers come back, resetting to the
// initial size and sleeping out any rate limit hit within the batch.
func (c *Collector) fetchBatch(ctx context.Context, host string, pending []specs.RepoSpec) []RepoResult {
	client := c.clients[host]
	cfg := c.hosts[host]

	var results []RepoResult
	nextBatchSize := initialBatchSize

	for len(pending) > 0 {
		batchSize := nextBatchSize
		if batchSize > len(pending) {
			batchSize = len(pending)
		}
		batch := pending[:batchSize]
		pending = pending[batchSize:]

		outcomes := make([]fetchOutcome, len(batch))
		var wg sync.WaitGroup
		for i, repo := range batch {
			wg.Add(1)
			go func(i int, repo specs.RepoSpec) {
				defer wg.Done()
				if err := c.sem.Acquire(ctx, 1); err != nil {
					outcomes[i] = fetchOutcome{
						repo:   repo,
						result: RepoResult{Repo: repo, Result: specs.Errored[facts.HostingData](err)},
					}
					return
				}
				defer c.sem.Release(1)
				outcomes[i] = c.fetchOne(ctx, client, cfg, repo)
			}(i, repo)
		}
		wg.Wait()

		var rateLimited []specs.RepoSpec
		var latestReset time.Time
		var latestRL *RateLimitInfo

		for _, o := range outcomes {
			if o.rateLimited {
				rateLimited = append(rateLimited, o.repo)
				if o.rl != nil && o.rl.ResetAt.After(latestReset) {
					latestReset = o.rl.ResetAt
				}
				continue
			}
			if o.rl != nil {
				latestRL = o.rl
			}
			results = append(results, o.result)
		}

		if len(rateLimited) == 0 {
			if latestRL != nil {
				possible := latestRL.Remaining / estimatedRequestsPerRepo
				nextBatchSize = clamp(possible, 1, maxBatchSize)
			}
			continue
		}

		pending = append(pending, rateLimited...)
		now := c.now()
		wait := latestReset
		if wait.IsZero() {
			wait = now.Add(time.Hour)
		}
		if cap := now.Add(maxRateLimitWait); wait.After(cap) {
			wait = cap
		}
		if d := wait.Sub(now); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return results
			}
		}
		nextBatchSize = initialBatchSize
	}

	return results
}

type fetchOutcome struct {
	repo        specs.RepoSpec
	result      RepoResult
	rateLimited bool
	rl          *RateLimitInfo
}

func (c *Collector) fetchOne(ctx context.Context, client *Client, cfg hostConfig, repo specs.RepoSpec) fetchOutcome {
	repoURL := fmt.Sprintf("%s/repos/%s/%s", client.BaseURL, repo.Owner, repo.Repo)
	repoRes := client.Call(ctx, repoURL)
	if repoRes.Tag == TagRateLimited {
		return fetchOutcome{repo: repo, rateLimited: true, rl: repoRes.RateLimit}
	}
	if repoRes.Tag != TagSuccess {
		return fetchOutcome{repo: repo, result: RepoResult{Repo: repo, Result: errorResult(repo, repoRes)}}
	}

	repoInfo, err := decodeJSON[Repository](repoRes.Body)
	if err != nil {
		return fetchOutcome{repo: repo, result: RepoResult{Repo: repo, Result: specs.Errored[facts.HostingData](err)}}
	}

	issues, issuesRL, issuesErr := c.fetchAllIssues(ctx, client, repo)
	if issuesErr != nil {
		if issuesErr == errRateLimited {
			return fetchOutcome{repo: repo, rateLimited: true, rl: issuesRL}
		}
		return fetchOutcome{repo: repo, result: RepoResult{Repo: repo, Result: specs.Errored[facts.HostingData](issuesErr)}}
	}

	rl := mostConservative(repoRes.RateLimit, issuesRL)

	hostingData := facts.HostingData{
		Stargazers:  repoInfo.Stargazers(),
		Forks:       repoInfo.Forks(),
		Subscribers: repoInfo.Subscribers(cfg.useWatchers),
	}
	now := c.now()
	fillIssueStats(&hostingData, issues, now)

	return fetchOutcome{
		repo:   repo,
		result: RepoResult{Repo: repo, Result: specs.Found(hostingData)},
		rl:     rl,
	}
}

var errRateLimited = fmt.Errorf("hosting: %w", aprzerr.RateLimited)

func (c *Collector) fetchAllIssues(ctx context.Context, client *Client, repo specs.RepoSpec) ([]Issue, *RateLimitInfo, error) {
	since := c.now().AddDate(0, 0, -issueLookbackDays).Format(time.RFC3339)

	var all []Issue
	var latestRL *RateLimitInfo

	for page := 1; page <= maxIssuePages; page++ {
		q := url.Values{}
		q.Set("state", "all")
		q.Set("since", since)
		q.Set("per_page", fmt.Sprintf("%d", issuePageSize))
		q.Set("page", fmt.Sprintf("%d", page))
		pageURL := fmt.Sprintf("%s/repos/%s/%s/issues?%s", client.BaseURL, repo.Owner, repo.Repo, q.Encode())

		res := client.Call(ctx, pageURL)
		if res.Tag == TagRateLimited {
			return nil, res.RateLimit, errRateLimited
		}
		if res.Tag != TagSuccess {
			return nil, nil, fmt.Errorf("hosting: fetching issues for %s: %w", repo, resultErr(res))
		}
		latestRL = mostConservative(latestRL, res.RateLimit)

		issues, err := decodeJSON[[]Issue](res.Body)
		if err != nil {
			return nil, nil, err
		}
		if len(issues) == 0 {
			break
		}
		all = append(all, issues...)

		hasNext := res.Header.Get("Link") != "" && containsNextLink(res.Header.Get("Link"))
		if !hasNext {
			break
		}
	}

	return all, latestRL, nil
}

func containsNextLink(link string) bool {
	return len(link) > 0 && (contains(link, `rel="next"`))
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func resultErr(r Result) error {
	if r.Err != nil {
		return r.Err
	}
	return fmt.Errorf("hosting: unexpected status")
}

func errorResult(repo specs.RepoSpec, r Result) specs.ProviderResult[facts.HostingData] {
	if r.Tag == TagNotFound {
		return specs.PackageNotFound[facts.HostingData](nil)
	}
	return specs.Errored[facts.HostingData](resultErr(r))
}

func mostConservative(a, b *RateLimitInfo) *RateLimitInfo {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.Remaining <= b.Remaining {
		return a
	}
	return b
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// fillIssueStats classifies the full issue/PR list into windowed
// counts and age-distribution summaries, mirroring the upstream
// provider's compute_all_stats.
func fillIssueStats(data *facts.HostingData, issues []Issue, now time.Time) {
	var openIssues, closedIssues, openPRs, closedPRs []Issue
	for _, it := range issues {
		switch {
		case it.IsPR() && it.IsOpen():
			openPRs = append(openPRs, it)
		case it.IsPR() && !it.IsOpen():
			closedPRs = append(closedPRs, it)
		case !it.IsPR() && it.IsOpen():
			openIssues = append(openIssues, it)
		default:
			closedIssues = append(closedIssues, it)
		}
	}

	data.OpenIssues = windowCount(openIssues, now, func(i Issue) *time.Time { t := i.CreatedAt; return &t })
	data.ClosedIssues = windowCount(closedIssues, now, func(i Issue) *time.Time { return i.ClosedAt })
	data.OpenPRs = windowCount(openPRs, now, func(i Issue) *time.Time { t := i.CreatedAt; return &t })
	data.ClosedPRs = windowCount(closedPRs, now, func(i Issue) *time.Time { return i.ClosedAt })

	allPRs := append(append([]Issue{}, openPRs...), closedPRs...)
	var merged []Issue
	for _, pr := range allPRs {
		if pr.PullRequest != nil && pr.PullRequest.MergedAt != nil {
			merged = append(merged, pr)
		}
	}
	data.MergedPRs = windowCount(merged, now, func(i Issue) *time.Time { return i.PullRequest.MergedAt })

	data.OpenIssueAge = ageSummary(openIssues, now, func(i Issue) (time.Time, bool) { return i.CreatedAt, true })
	data.OpenPRAge = ageSummary(openPRs, now, func(i Issue) (time.Time, bool) { return i.CreatedAt, true })
	data.ClosedIssueAge = ageSummaryDuration(closedIssues, func(i Issue) (time.Duration, bool) {
		if i.ClosedAt == nil {
			return 0, false
		}
		return i.ClosedAt.Sub(i.CreatedAt), true
	})
	data.MergedPRAge = ageSummaryDuration(merged, func(i Issue) (time.Duration, bool) {
		if i.PullRequest == nil || i.PullRequest.MergedAt == nil {
			return 0, false
		}
		return i.PullRequest.MergedAt.Sub(i.CreatedAt), true
	})
}

func windowCount(items []Issue, now time.Time, ts func(Issue) *time.Time) facts.WindowCounts {
	cutoff90 := now.AddDate(0, 0, -90)
	cutoff180 := now.AddDate(0, 0, -180)
	cutoff365 := now.AddDate(0, 0, -365)

	var w facts.WindowCounts
	for _, it := range items {
		t := ts(it)
		if t == nil {
			continue
		}
		w.Total++
		if t.After(cutoff365) {
			w.Last365d++
			if t.After(cutoff180) {
				w.Last180d++
				if t.After(cutoff90) {
					w.Last90d++
				}
			}
		}
	}
	return w
}

// ageSummary computes the five-statistic age distribution (avg and
// p50/p75/p90/p95, in days) using nearest-rank percentile selection
// over now minus the extracted open timestamp.
func ageSummary(items []Issue, now time.Time, extract func(Issue) (time.Time, bool)) facts.AgeSummary {
	var days []float64
	for _, it := range items {
		t, ok := extract(it)
		if !ok {
			continue
		}
		age := now.Sub(t).Hours() / 24
		if age >= 0 {
			days = append(days, age)
		}
	}
	return summarize(days)
}

func ageSummaryDuration(items []Issue, extract func(Issue) (time.Duration, bool)) facts.AgeSummary {
	var days []float64
	for _, it := range items {
		d, ok := extract(it)
		if !ok {
			continue
		}
		age := d.Hours() / 24
		if age >= 0 {
			days = append(days, age)
		}
	}
	return summarize(days)
}

func summarize(days []float64) facts.AgeSummary {
	if len(days) == 0 {
		return facts.AgeSummary{}
	}
	sort.Float64s(days)

	var sum float64
	for _, d := range days {
		sum += d
	}

	return facts.AgeSummary{
		Avg: sum / float64(len(days)),
		P50: percentile(days, 50),
		P75: percentile(days, 75),
		P90: percentile(days, 90),
		P95: percentile(days, 95),
	}
}

// percentile uses nearest-rank selection over pre-sorted data.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p/100*float64(len(sorted)-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (c *Collector) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
