// Package hosting implements the hosting API client and classifier
// (component G) and the dynamic-batch collector (component H).
package hosting

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// clientRateLimit paces outbound requests between the explicit
// rate-limit sleeps the collector already enforces: a client-side
// floor so a burst within one batch never trips the remote limiter in
// the first place.
const clientRateLimit = 10 // requests per second

// RateLimitInfo is the rate-limit state extracted from response headers.
type RateLimitInfo struct {
	Remaining int
	ResetAt   time.Time
}

// ResultTag discriminates a hosting API call's outcome.
type ResultTag int

const (
	TagSuccess ResultTag = iota
	TagRateLimited
	TagNotFound
	TagFailed
)

// Result is the classified outcome of one hosting API call.
type Result struct {
	Tag         ResultTag
	Body        []byte
	Header      http.Header
	RateLimit   *RateLimitInfo
	Err         error
}

// Repository is the subset of a hosting provider's repo payload this
// tool needs. Codeberg reports watchers_count where GitHub reports
// subscribers_count; Repository.Subscribers picks the right field.
type Repository struct {
	StargazersCount  *int64 `json:"stargazers_count"`
	StarsCount       *int64 `json:"stars_count"`
	ForksCount       *int64 `json:"forks_count"`
	SubscribersCount *int64 `json:"subscribers_count"`
	WatchersCount    *int64 `json:"watchers_count"`
}

// Stargazers returns stargazers_count, falling back to Codeberg's
// stars_count alias.
func (r Repository) Stargazers() uint64 {
	if r.StargazersCount != nil {
		return nonNegative(*r.StargazersCount)
	}
	if r.StarsCount != nil {
		return nonNegative(*r.StarsCount)
	}
	return 0
}

func (r Repository) Forks() uint64 {
	if r.ForksCount != nil {
		return nonNegative(*r.ForksCount)
	}
	return 0
}

// Subscribers picks subscribers_count or, for hosts that report
// watchers instead (Codeberg), watchers_count.
func (r Repository) Subscribers(useWatchers bool) uint64 {
	if useWatchers {
		if r.WatchersCount != nil {
			return nonNegative(*r.WatchersCount)
		}
		return 0
	}
	if r.SubscribersCount != nil {
		return nonNegative(*r.SubscribersCount)
	}
	return 0
}

func nonNegative(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// PullRequestMarker is present on an Issue when GitHub's issues
// endpoint is reporting a pull request; MergedAt is set once merged.
type PullRequestMarker struct {
	MergedAt *time.Time `json:"merged_at"`
}

// Issue is the subset of a hosting provider's issue/PR payload needed
// to derive age and window statistics.
type Issue struct {
	CreatedAt     time.Time          `json:"created_at"`
	ClosedAt      *time.Time         `json:"closed_at"`
	State         string             `json:"state"`
	PullRequest   *PullRequestMarker `json:"pull_request"`
}

func (i Issue) IsOpen() bool { return i.State == "open" }
func (i Issue) IsPR() bool   { return i.PullRequest != nil }

// Client is a minimal hosting API client bound to one base URL and
// optional bearer token.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	Token   string

	limiter *rate.Limiter
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		HTTP:    http.DefaultClient,
		BaseURL: baseURL,
		Token:   token,
		limiter: rate.NewLimiter(rate.Limit(clientRateLimit), clientRateLimit),
	}
}

// Call issues a GET against url and classifies the response per the
// precedence table in classifyResponse.
func (c *Client) Call(ctx context.Context, url string) Result {
	if err := c.limiter.Wait(ctx); err != nil {
		return Result{Tag: TagFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{Tag: TagFailed, Err: err}
	}
	req.Header.Set("User-Agent", "aprz")
	if c.Token != "" {
		req.Header.Set("Authorization", "token "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Result{Tag: TagFailed, Err: err}
	}
	defer resp.Body.Close()

	body, err := readAll(resp)
	if err != nil {
		return Result{Tag: TagFailed, Err: err}
	}

	rl := extractRateLimit(resp.Header)
	return classifyResponse(resp.StatusCode, resp.Header, body, rl, url)
}

func readAll(resp *http.Response) ([]byte, error) {
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			if err.Error() == "EOF" {
				return buf, nil
			}
			return buf, err
		}
	}
}

// classifyResponse implements the exact precedence table from the
// appraised upstream client: success, then (for 403/429) secondary
// rate limit via Retry-After, then primary rate limit via exhausted
// x-ratelimit-remaining (or absent headers), then 429-always-limited,
// then 403-permission-error, then 404, then any other status as a
// permanent failure.
func classifyResponse(status int, header http.Header, body []byte, rl *RateLimitInfo, url string) Result {
	if status >= 200 && status < 300 {
		return Result{Tag: TagSuccess, Body: body, Header: header, RateLimit: rl}
	}

	if status == 403 || status == 429 {
		if secs, ok := retryAfterSeconds(header); ok {
			slog.Warn("secondary rate limit", "status", status, "retry_after_s", secs, "url", url)
			return Result{Tag: TagRateLimited, RateLimit: &RateLimitInfo{
				Remaining: 0,
				ResetAt:   time.Now().Add(time.Duration(secs) * time.Second),
			}}
		}

		primaryExhausted := rl == nil || rl.Remaining == 0
		if primaryExhausted {
			slog.Warn("primary rate limit exhausted", "status", status, "url", url)
			effective := rl
			if effective == nil {
				effective = &RateLimitInfo{Remaining: 0, ResetAt: time.Now().Add(time.Hour)}
			}
			return Result{Tag: TagRateLimited, RateLimit: effective}
		}

		if status == 429 {
			slog.Warn("rate limited", "status", 429, "remaining", rl.Remaining, "url", url)
			effective := rl
			if effective == nil {
				effective = &RateLimitInfo{Remaining: 0, ResetAt: time.Now().Add(time.Minute)}
			}
			return Result{Tag: TagRateLimited, RateLimit: effective}
		}

		slog.Warn("permission error, not rate limited", "status", status, "remaining", rl.Remaining, "url", url)
		return Result{Tag: TagFailed, RateLimit: rl, Err: fmt.Errorf("hosting: HTTP %d for %s", status, url)}
	}

	if status == 404 {
		return Result{Tag: TagNotFound, RateLimit: rl}
	}

	slog.Warn("hosting API error", "status", status, "url", url)
	return Result{Tag: TagFailed, RateLimit: rl, Err: fmt.Errorf("hosting: HTTP %d for %s", status, url)}
}

func retryAfterSeconds(header http.Header) (int, bool) {
	v := header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func extractRateLimit(header http.Header) *RateLimitInfo {
	remainingStr := header.Get("x-ratelimit-remaining")
	resetStr := header.Get("x-ratelimit-reset")
	if remainingStr == "" || resetStr == "" {
		return nil
	}
	remaining, err := strconv.Atoi(remainingStr)
	if err != nil {
		return nil
	}
	resetUnix, err := strconv.ParseInt(resetStr, 10, 64)
	if err != nil {
		return nil
	}
	return &RateLimitInfo{Remaining: remaining, ResetAt: time.Unix(resetUnix, 0)}
}

// decodeJSON is a thin helper kept separate so collector.go doesn't
// need to import encoding/json directly.
func decodeJSON[T any](body []byte) (T, error) {
	var out T
	err := json.Unmarshal(body, &out)
	return out, err
}
