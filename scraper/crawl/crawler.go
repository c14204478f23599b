// Package crawl sequences discovery over every configured search and then
// extracts each newly discovered listing exactly once.
package crawl

import (
	"context"
	"fmt"
	"time"

	"zoopla-scraper/models"
	"zoopla-scraper/utils"
)

// Indexer discovers listing ids for one search.
type Indexer interface {
	Index(ctx context.Context, search models.SearchConfig) ([]string, error)
}

// DetailScraper fetches and extracts one listing.
type DetailScraper interface {
	Scrape(ctx context.Context, ref models.ListingRef) (*models.ListingRecord, error)
}

// Config tunes retries and pacing for a crawl.
type Config struct {
	// DiscoveryRetry wraps each search's whole discovery.
	DiscoveryRetry utils.RetryPolicy
	// RateLimitRetry governs back-off when the detail-page budget is spent.
	RateLimitRetry utils.RetryPolicy
	SearchPacing   time.Duration
	DetailPacing   time.Duration
}

// Crawler runs the two crawl phases strictly in sequence.
type Crawler struct {
	cfg         Config
	indexer     Indexer
	details     DetailScraper
	limiter     utils.Limiter
	logger      *utils.Logger
	searchPacer *utils.Pacer
	detailPacer *utils.Pacer
}

// New creates a Crawler.
func New(cfg Config, indexer Indexer, details DetailScraper, limiter utils.Limiter, logger *utils.Logger) *Crawler {
	return &Crawler{
		cfg:         cfg,
		indexer:     indexer,
		details:     details,
		limiter:     limiter,
		logger:      logger,
		searchPacer: utils.NewPacer(cfg.SearchPacing),
		detailPacer: utils.NewPacer(cfg.DetailPacing),
	}
}

// discoveryState is the running result of phase 1.
type discoveryState struct {
	Refs []models.ListingRef
	// Seen holds every id already scheduled for extraction.
	Seen utils.IDSet
}

// Run discovers listings for every search and extracts each one. Only a
// pagination overrun or exhausted discovery retries abort the run; a failed
// listing is logged and skipped. On cancellation the records gathered so far
// are returned with the context error.
func (c *Crawler) Run(ctx context.Context, searches []models.SearchConfig) (models.Dataset, error) {
	refs, err := c.Discover(ctx, searches)
	if err != nil {
		return nil, err
	}
	return c.Extract(ctx, refs)
}

// Discover runs phase 1 and returns the merged, order-preserving refs. The
// first search to report an id owns it.
func (c *Crawler) Discover(ctx context.Context, searches []models.SearchConfig) ([]models.ListingRef, error) {
	state := discoveryState{Seen: utils.NewIDSet()}
	start := time.Now()

	for _, search := range searches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lap := time.Now()
		c.logger.Info("[crawl] discovering %q", search.Query)

		next, err := c.discover(ctx, state, search)
		if err != nil {
			return nil, err
		}
		c.logger.Info("[crawl] %q added %d new listings, %d total in %.1fs (T: %.1fs)",
			search.Query, len(next.Refs)-len(state.Refs), len(next.Refs),
			time.Since(lap).Seconds(), time.Since(start).Seconds())
		state = next

		if err := c.searchPacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	c.logger.Info("[crawl] discovery done, got %d listings to look up", len(state.Refs))
	return state.Refs, nil
}

func (c *Crawler) discover(ctx context.Context, state discoveryState, search models.SearchConfig) (discoveryState, error) {
	policy := c.cfg.DiscoveryRetry
	policy.ShouldRetry = func(error) bool { return ctx.Err() == nil }

	var ids []string
	err := policy.Do(ctx, fmt.Sprintf("discover %q", search.Query), func() error {
		var err error
		ids, err = c.indexer.Index(ctx, search)
		return err
	})
	if err != nil {
		return state, fmt.Errorf("discovery for %q: %w", search.Query, err)
	}

	next := discoveryState{
		Refs: append(make([]models.ListingRef, 0, len(state.Refs)+len(ids)), state.Refs...),
		Seen: state.Seen.Union(),
	}
	for _, id := range ids {
		if next.Seen.Add(id) {
			next.Refs = append(next.Refs, models.ListingRef{Query: search.Query, ID: id})
		}
	}
	return next, nil
}

// Extract runs phase 2 over refs in order.
func (c *Crawler) Extract(ctx context.Context, refs []models.ListingRef) (models.Dataset, error) {
	dataset := make(models.Dataset, 0, len(refs))
	acquire := utils.RateLimitRetry(c.cfg.RateLimitRetry, c.limiter, utils.ClassDetailPage)
	total := len(refs)
	start := time.Now()

	for i, ref := range refs {
		if err := ctx.Err(); err != nil {
			return dataset, err
		}
		lap := time.Now()

		err := acquire.Do(ctx, "detail-page rate limit", func() error {
			return c.limiter.Acquire(utils.ClassDetailPage)
		})
		var rec *models.ListingRecord
		if err == nil {
			rec, err = c.details.Scrape(ctx, ref)
		}
		if err != nil {
			c.logger.Error("[crawl] phase=extract id=%s query=%q (%d of %d) skipped: %v",
				ref.ID, ref.Query, i+1, total, err)
			continue
		}

		dataset = append(dataset, rec)
		c.logger.Info("[crawl] loaded %s, %d of %d (%.1fs, T: %.1fs)",
			ref.ID, i+1, total, time.Since(lap).Seconds(), time.Since(start).Seconds())

		if err := c.detailPacer.Wait(ctx); err != nil {
			return dataset, err
		}
	}

	c.logger.Info("[crawl] done, %d of %d listings extracted in %.1fmin",
		len(dataset), total, time.Since(start).Minutes())
	return dataset, nil
}
