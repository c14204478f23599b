package crawl

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"zoopla-scraper/models"
	"zoopla-scraper/scraper/fetch"
	"zoopla-scraper/scraper/zoopla"
	"zoopla-scraper/utils"
)

type scriptedIndexer struct {
	results map[string][]string
	errs    map[string][]error
	calls   map[string]int
}

func (s *scriptedIndexer) Index(_ context.Context, search models.SearchConfig) ([]string, error) {
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	n := s.calls[search.Query]
	s.calls[search.Query]++
	if errs := s.errs[search.Query]; n < len(errs) && errs[n] != nil {
		return nil, errs[n]
	}
	return s.results[search.Query], nil
}

type scriptedDetails struct {
	fail    map[string]error
	scraped []string
}

func (s *scriptedDetails) Scrape(_ context.Context, ref models.ListingRef) (*models.ListingRecord, error) {
	s.scraped = append(s.scraped, ref.ID)
	if err := s.fail[ref.ID]; err != nil {
		return nil, err
	}
	return &models.ListingRecord{ID: ref.ID, Query: ref.Query}, nil
}

type openLimiter struct{ calls int }

func (l *openLimiter) Acquire(string) error {
	l.calls++
	return nil
}

func (l *openLimiter) Backoff(string) time.Duration { return 2 * time.Second }

func noSleep(context.Context, time.Duration) error { return nil }

func testConfig() Config {
	return Config{
		DiscoveryRetry: utils.RetryPolicy{MaxAttempts: 3, Backoff: utils.ConstantBackoff(2 * time.Second), Sleep: noSleep},
		RateLimitRetry: utils.RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
	}
}

func searches(queries ...string) []models.SearchConfig {
	out := make([]models.SearchConfig, 0, len(queries))
	for _, q := range queries {
		out = append(out, models.SearchConfig{Query: q})
	}
	return out
}

func TestDiscoverDedupAcrossSearchesFirstWins(t *testing.T) {
	idx := &scriptedIndexer{results: map[string][]string{
		"A": {"1", "2"},
		"B": {"3", "2", "4"},
	}}
	c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())

	refs, err := c.Discover(context.Background(), searches("A", "B"))

	require.NoError(t, err)
	assert.Equal(t, []models.ListingRef{
		{Query: "A", ID: "1"},
		{Query: "A", ID: "2"},
		{Query: "B", ID: "3"},
		{Query: "B", ID: "4"},
	}, refs)
}

func TestDiscoverDropsDuplicatesWithinOneSearch(t *testing.T) {
	idx := &scriptedIndexer{results: map[string][]string{"A": {"1", "2", "1"}}}
	c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())

	refs, err := c.Discover(context.Background(), searches("A"))

	require.NoError(t, err)
	assert.Equal(t, []models.ListingRef{{Query: "A", ID: "1"}, {Query: "A", ID: "2"}}, refs)
}

func TestDiscoverStateIsNotShared(t *testing.T) {
	c := New(testConfig(), &scriptedIndexer{results: map[string][]string{"A": {"1"}}}, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())

	before := discoveryState{Seen: utils.NewIDSet()}
	after, err := c.discover(context.Background(), before, models.SearchConfig{Query: "A"})

	require.NoError(t, err)
	assert.Zero(t, before.Seen.Size())
	assert.Empty(t, before.Refs)
	assert.True(t, after.Seen.Contains("1"))
}

func TestDiscoverRetriesTransientErrors(t *testing.T) {
	idx := &scriptedIndexer{
		results: map[string][]string{"A": {"1"}},
		errs:    map[string][]error{"A": {errors.New("browser crashed"), errors.New("again")}},
	}
	c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())

	refs, err := c.Discover(context.Background(), searches("A"))

	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, 3, idx.calls["A"])
}

func TestDiscoverRetriesExhaustedAbortsRun(t *testing.T) {
	boom := errors.New("browser crashed")
	idx := &scriptedIndexer{
		results: map[string][]string{"A": {"1"}, "B": {"2"}},
		errs:    map[string][]error{"B": {boom, boom, boom}},
	}
	details := &scriptedDetails{}
	c := New(testConfig(), idx, details, &openLimiter{}, utils.NewNopLogger())

	dataset, err := c.Run(context.Background(), searches("A", "B"))

	assert.ErrorIs(t, err, boom)
	assert.Nil(t, dataset)
	assert.Equal(t, 3, idx.calls["B"])
	assert.Empty(t, details.scraped, "extraction must not start after a fatal discovery error")
}

func TestPaginationOverrunAbortsWithoutRetry(t *testing.T) {
	overrun := utils.Permanent(fmt.Errorf("%w: A", zoopla.ErrPaginationOverrun))
	idx := &scriptedIndexer{errs: map[string][]error{"A": {overrun}}}
	c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())

	_, err := c.Run(context.Background(), searches("A", "B"))

	assert.ErrorIs(t, err, zoopla.ErrPaginationOverrun)
	assert.Equal(t, 1, idx.calls["A"])
	assert.Zero(t, idx.calls["B"])
}

func TestDiscoverStopsOnCancel(t *testing.T) {
	idx := &scriptedIndexer{results: map[string][]string{"A": {"1"}}}
	c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dataset, err := c.Run(ctx, searches("A", "B"))

	assert.Nil(t, dataset)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, idx.calls)
}

func TestExtractSkipsFailedRecord(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	logger := utils.NewLoggerFromZap(zap.New(core))

	details := &scriptedDetails{fail: map[string]error{
		"2": fmt.Errorf("detail page: %w", fetch.ErrEmptyDocument),
	}}
	c := New(testConfig(), &scriptedIndexer{}, details, &openLimiter{}, logger)

	refs := []models.ListingRef{{Query: "A", ID: "1"}, {Query: "A", ID: "2"}, {Query: "A", ID: "3"}}
	dataset, err := c.Extract(context.Background(), refs)

	require.NoError(t, err)
	assert.Equal(t, []string{"1", "3"}, dataset.IDs())
	assert.Equal(t, []string{"1", "2", "3"}, details.scraped, "failed records are not retried")

	errLogs := logs.FilterMessageSnippet("id=2").All()
	require.Len(t, errLogs, 1)
	assert.Contains(t, errLogs[0].Message, "phase=extract")
	assert.Contains(t, errLogs[0].Message, "empty document")
}

type countingLimiter struct {
	rejectEvery bool
	calls       int
}

func (l *countingLimiter) Acquire(string) error {
	l.calls++
	if l.rejectEvery && l.calls%2 == 1 {
		return utils.ErrRateLimitExceeded
	}
	return nil
}

func (l *countingLimiter) Backoff(string) time.Duration { return 2 * time.Second }

func TestExtractBacksOffOnDetailRateLimit(t *testing.T) {
	limiter := &countingLimiter{rejectEvery: true}
	details := &scriptedDetails{}
	c := New(testConfig(), &scriptedIndexer{}, details, limiter, utils.NewNopLogger())

	refs := []models.ListingRef{{Query: "A", ID: "1"}, {Query: "A", ID: "2"}}
	dataset, err := c.Extract(context.Background(), refs)

	require.NoError(t, err)
	assert.Len(t, dataset, 2)
	assert.Equal(t, 4, limiter.calls)
}

func TestExtractStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(testConfig(), &scriptedIndexer{}, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())
	dataset, err := c.Extract(ctx, []models.ListingRef{{Query: "A", ID: "1"}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dataset)
}

func TestRunNeverProducesDuplicateIDs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		idx := &scriptedIndexer{results: map[string][]string{}}
		var queries []string
		for s := 0; s < 1+rng.Intn(5); s++ {
			q := fmt.Sprintf("search-%d", s)
			queries = append(queries, q)
			for n := 0; n < rng.Intn(30); n++ {
				idx.results[q] = append(idx.results[q], fmt.Sprintf("%d", rng.Intn(40)))
			}
		}

		c := New(testConfig(), idx, &scriptedDetails{}, &openLimiter{}, utils.NewNopLogger())
		dataset, err := c.Run(context.Background(), searches(queries...))
		require.NoError(t, err)

		seen := make(map[string]bool)
		for _, id := range dataset.IDs() {
			require.False(t, seen[id], "trial %d: duplicate id %s", trial, id)
			seen[id] = true
		}
	}
}
