package zoopla

import (
	"context"
	"errors"
	"strings"
	"time"

	"zoopla-scraper/models"
	"zoopla-scraper/scraper/fetch"
	"zoopla-scraper/scraper/markup"
	"zoopla-scraper/services"
	"zoopla-scraper/utils"
)

// ErrNoDocument is returned when there is no detail document to extract from.
var ErrNoDocument = errors.New("no detail document")

// GeoEnricher resolves coordinates to a road and postcode.
type GeoEnricher interface {
	Enrich(ctx context.Context, lat, lon string) (road, postcode *string, ok bool)
}

// DetailExtractor turns a listing's detail document into a ListingRecord.
// Every sub-field is optional; only a missing document is an error.
type DetailExtractor struct {
	geo    GeoEnricher
	logger *utils.Logger
	now    func() time.Time
}

// NewDetailExtractor creates a DetailExtractor. geo may be nil to skip enrichment.
func NewDetailExtractor(geo GeoEnricher, logger *utils.Logger) *DetailExtractor {
	return &DetailExtractor{geo: geo, logger: logger, now: time.Now}
}

// Extract builds the record for one listing.
func (e *DetailExtractor) Extract(ctx context.Context, id, query string, doc markup.Node) (*models.ListingRecord, error) {
	if doc == nil {
		return nil, ErrNoDocument
	}

	rec := &models.ListingRecord{
		ID:        id,
		Query:     query,
		Features:  make(map[string]models.FeatureValue),
		Views:     make(map[string]int),
		ScrapedAt: e.now(),
	}

	rec.PriceHistory = e.priceHistory(id, doc)
	for _, entry := range rec.PriceHistory {
		// Last "First listed" entry wins when the page lists more than one.
		if entry.Event == models.FirstListedEvent {
			d := entry.Date
			rec.FirstListed = &d
		}
	}

	summary, _ := markup.Locate(doc, summaryLoc)
	rec.Headline = markup.OptionalText(summary, headlineLoc, "")
	rec.PartialAddress = markup.OptionalText(summary, partialAddressLoc, "")
	rec.Price = markup.OptionalText(summary, priceLoc, priceStripChars)

	details, _ := markup.Locate(doc, detailsTabLoc)
	rec.Description = markup.OptionalText(details, descriptionLoc, "")

	for _, feat := range markup.LocateAll(details, featureLoc) {
		key, val, ok := services.ParseFeature(feat.Text())
		if !ok {
			continue
		}
		rec.Features[key] = val
	}

	for _, view := range markup.LocateAll(details, viewCountLoc) {
		key, n, ok := services.ParseViewCount(view.Text())
		if !ok {
			e.logger.Debug("[detail] %s: unreadable view count %q", id, strings.TrimSpace(view.Text()))
			continue
		}
		rec.Views[key] = n
	}

	e.locate(ctx, rec, doc)
	return rec, nil
}

func (e *DetailExtractor) priceHistory(id string, doc markup.Node) []models.PriceHistoryEntry {
	var rows []models.PriceHistoryEntry
	for _, item := range markup.LocateAll(doc, priceHistoryItemLoc) {
		parts := item.LocateAll(priceHistoryPartLoc)
		if len(parts) < 3 {
			e.logger.Debug("[detail] %s: price history entry has %d parts, skipping", id, len(parts))
			continue
		}
		date, err := services.ParseDateLabel(parts[0].Text())
		if err != nil {
			e.logger.Debug("[detail] %s: %v", id, err)
			continue
		}
		price, err := services.ParsePriceLabel(parts[1].Text())
		if err != nil {
			e.logger.Debug("[detail] %s: %v", id, err)
			continue
		}
		rows = append(rows, models.PriceHistoryEntry{
			Date:  date,
			Price: price,
			Event: services.NormaliseText(parts[2].Text()),
		})
	}
	return rows
}

// locate reads the map pin coordinates and, when present, enriches them.
func (e *DetailExtractor) locate(ctx context.Context, rec *models.ListingRecord, doc markup.Node) {
	img, ok := markup.Locate(doc, staticMapLoc)
	if !ok {
		e.logger.Debug("[detail] %s: no map found", rec.ID)
		return
	}
	src, ok := img.Attr(staticMapSrcKey)
	if !ok {
		return
	}
	lat, long, ok := coordinatesFromMapSrc(src)
	if !ok {
		e.logger.Debug("[detail] %s: map has no marker pin", rec.ID)
		return
	}
	rec.Latitude = &lat
	rec.Longitude = &long

	if e.geo == nil {
		return
	}
	if road, postcode, ok := e.geo.Enrich(ctx, lat, long); ok {
		rec.Road = road
		rec.Postcode = postcode
	}
}

// DetailScraper fetches a listing's detail page and extracts it.
type DetailScraper struct {
	baseURL   string
	fetcher   fetch.PageFetcher
	extractor *DetailExtractor
}

// NewDetailScraper creates a DetailScraper for the site at baseURL.
func NewDetailScraper(baseURL string, fetcher fetch.PageFetcher, extractor *DetailExtractor) *DetailScraper {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &DetailScraper{baseURL: baseURL, fetcher: fetcher, extractor: extractor}
}

// Scrape fetches and extracts one listing.
func (s *DetailScraper) Scrape(ctx context.Context, ref models.ListingRef) (*models.ListingRecord, error) {
	doc, err := s.fetcher.Fetch(ctx, DetailURL(s.baseURL, ref.ID), fetch.Static)
	if err != nil {
		return nil, err
	}
	return s.extractor.Extract(ctx, ref.ID, ref.Query, doc)
}
