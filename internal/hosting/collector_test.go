package hosting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aprz.dev/aprz/internal/facts"
)

func TestPercentileEmpty(t *testing.T) {
	require.Equal(t, float64(0), percentile(nil, 50))
}

func TestPercentileSingleElement(t *testing.T) {
	require.Equal(t, float64(42), percentile([]float64{42}, 50))
}

func TestPercentileMedian(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	require.Equal(t, float64(3), percentile(data, 50))
}

func TestPercentile75th(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	require.Equal(t, float64(4), percentile(data, 75))
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	require.Equal(t, float64(0), s.Avg)
	require.Equal(t, float64(0), s.P50)
}

func TestAgeSummaryOpenIssues(t *testing.T) {
	now := time.Now()
	issues := []Issue{
		{CreatedAt: now.AddDate(0, 0, -10), State: "open"},
		{CreatedAt: now.AddDate(0, 0, -20), State: "open"},
		{CreatedAt: now.AddDate(0, 0, -5), State: "open"},
	}
	age := ageSummary(issues, now, func(i Issue) (time.Time, bool) { return i.CreatedAt, true })
	require.InDelta(t, 11.67, age.Avg, 0.5)
}

func TestWindowCountClassifiesByAge(t *testing.T) {
	now := time.Now()
	items := []Issue{
		{CreatedAt: now.AddDate(0, 0, -10)},
		{CreatedAt: now.AddDate(0, 0, -200)},
		{CreatedAt: now.AddDate(0, 0, -400)},
	}
	w := windowCount(items, now, func(i Issue) *time.Time { t := i.CreatedAt; return &t })
	require.Equal(t, uint64(3), w.Total)
	require.Equal(t, uint64(1), w.Last90d)
	require.Equal(t, uint64(1), w.Last180d)
}

// Pinning windowCount's cutoffs to a fixed, far-future now (rather than
// the real wall clock) is the regression check for threading the
// collector's injectable clock through consistently with ageSummary.
func TestWindowCountUsesInjectedNowNotWallClock(t *testing.T) {
	fixedNow := time.Date(2030, time.January, 1, 0, 0, 0, 0, time.UTC)
	items := []Issue{
		{CreatedAt: fixedNow.AddDate(0, 0, -10)},
		{CreatedAt: time.Now().AddDate(0, 0, -10)}, // within 90d of the real clock, not of fixedNow
	}
	w := windowCount(items, fixedNow, func(i Issue) *time.Time { t := i.CreatedAt; return &t })
	require.Equal(t, uint64(2), w.Total)
	require.Equal(t, uint64(1), w.Last90d)
}

func TestClampBounds(t *testing.T) {
	require.Equal(t, 1, clamp(0, 1, 64))
	require.Equal(t, 64, clamp(1000, 1, 64))
	require.Equal(t, 32, clamp(32, 1, 64))
}

func TestMostConservativePicksLowerRemaining(t *testing.T) {
	a := &RateLimitInfo{Remaining: 100}
	b := &RateLimitInfo{Remaining: 10}
	require.Equal(t, b, mostConservative(a, b))
	require.Equal(t, a, mostConservative(a, nil))
}

func TestFillIssueStatsClassifiesPRsAndIssues(t *testing.T) {
	now := time.Now()
	mergedAt := now.AddDate(0, 0, -1)
	issues := []Issue{
		{CreatedAt: now.AddDate(0, 0, -30), State: "open"},
		{CreatedAt: now.AddDate(0, 0, -10), State: "closed", ClosedAt: ptr(now.AddDate(0, 0, -5))},
		{CreatedAt: now.AddDate(0, 0, -20), State: "closed", PullRequest: &PullRequestMarker{MergedAt: &mergedAt}},
	}

	var data facts.HostingData
	fillIssueStats(&data, issues, now)
	require.Equal(t, uint64(1), data.OpenIssues.Total)
	require.Equal(t, uint64(1), data.ClosedIssues.Total)
	require.Equal(t, uint64(1), data.MergedPRs.Total)
}

func ptr(t time.Time) *time.Time { return &t }
