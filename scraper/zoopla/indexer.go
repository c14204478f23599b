package zoopla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"zoopla-scraper/models"
	"zoopla-scraper/scraper/fetch"
	"zoopla-scraper/scraper/markup"
	"zoopla-scraper/utils"
)

// DefaultMaxPages is the pagination ceiling for one search.
const DefaultMaxPages = 50

// ErrPaginationOverrun means a search kept returning results past the page
// ceiling. Pagination is assumed broken and the whole crawl aborts.
var ErrPaginationOverrun = errors.New("pagination overrun")

// IndexerConfig tunes the ListingIndexer.
type IndexerConfig struct {
	MaxPages int
	// Pacing is the politeness delay between successive page fetches.
	Pacing time.Duration
	// RateLimitRetry governs back-off when the listing-page budget is spent.
	RateLimitRetry utils.RetryPolicy
}

// Indexer walks the result pages of one search and collects listing ids.
type Indexer struct {
	cfg     IndexerConfig
	fetcher fetch.PageFetcher
	limiter utils.Limiter
	pacer   *utils.Pacer
	logger  *utils.Logger
}

// NewIndexer creates an Indexer.
func NewIndexer(cfg IndexerConfig, fetcher fetch.PageFetcher, limiter utils.Limiter, logger *utils.Logger) *Indexer {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	return &Indexer{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		pacer:   utils.NewPacer(cfg.Pacing),
		logger:  logger,
	}
}

// Index returns the listing ids of a search in page order, then document order.
// Duplicates are kept. A fetch failure or an empty page ends pagination
// normally; running past MaxPages returns a permanent ErrPaginationOverrun.
func (ix *Indexer) Index(ctx context.Context, search models.SearchConfig) ([]string, error) {
	var ids []string
	acquire := utils.RateLimitRetry(ix.cfg.RateLimitRetry, ix.limiter, utils.ClassListingPage)

	for page := 1; page <= ix.cfg.MaxPages; page++ {
		pageURL := SearchURL(search, page)
		ix.logger.Info("[indexer] %s: getting page %d", search.Query, page)

		err := acquire.Do(ctx, "listing-page rate limit", func() error {
			return ix.limiter.Acquire(utils.ClassListingPage)
		})
		if err != nil {
			return nil, fmt.Errorf("page %d of %q: %w", page, search.Query, err)
		}

		doc, err := ix.fetcher.Fetch(ctx, pageURL, fetch.Rendered)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("page %d of %q: %w", page, search.Query, ctxErr)
		}
		if err != nil {
			if errors.Is(err, fetch.ErrFetchFailure) {
				ix.logger.Warn("[indexer] %s: page %d unusable, stopping after %d ids: %v",
					search.Query, page, len(ids), err)
				return ids, nil
			}
			return nil, fmt.Errorf("page %d of %q: %w", page, search.Query, err)
		}
		if doc == nil {
			ix.logger.Warn("[indexer] %s: page %d returned no document, stopping after %d ids",
				search.Query, page, len(ids))
			return ids, nil
		}

		pageIDs := ListingIDs(doc)
		if len(pageIDs) == 0 {
			ix.logger.Info("[indexer] %s: no more results, stopping after %d ids", search.Query, len(ids))
			return ids, nil
		}
		ids = append(ids, pageIDs...)

		if err := ix.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return nil, utils.Permanent(fmt.Errorf("%w: %q still has results after %d pages",
		ErrPaginationOverrun, search.Query, ix.cfg.MaxPages))
}

// ListingIDs extracts every listing id on a results page in document order.
func ListingIDs(doc markup.Node) []string {
	var ids []string
	for _, link := range markup.LocateAll(doc, listingLinkLoc) {
		href, ok := link.Attr("href")
		if !ok {
			continue
		}
		if id, ok := listingIDFromHref(href); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
