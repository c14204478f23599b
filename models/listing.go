package models

import (
	"encoding/json"
	"time"
)

// SearchFilters are the query parameters sent with every search page request.
type SearchFilters struct {
	BedsMin  int `yaml:"beds_min"`
	PriceMax int `yaml:"price_max"`
	Radius   int `yaml:"radius"`
	PageSize int `yaml:"page_size"`
}

// SearchConfig describes one target search on the site.
type SearchConfig struct {
	Query   string        `yaml:"q"`
	Link    string        `yaml:"link"`
	Filters SearchFilters `yaml:"filters"`
}

// ListingRef pairs a listing identifier with the query label that first found it.
type ListingRef struct {
	Query string
	ID    string
}

// DateLayout is the compact date form used in output records.
const DateLayout = "20060102"

// FirstListedEvent is the price history event that marks a listing's first appearance.
const FirstListedEvent = "First listed"

// PriceHistoryEntry is one row of a listing's price history.
type PriceHistoryEntry struct {
	Date  time.Time
	Price int
	Event string
}

// MarshalJSON encodes the entry as a [date, price, event] tuple.
func (e PriceHistoryEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.Date.Format(DateLayout), e.Price, e.Event})
}

// FeatureValue is either a text value ("3") or a flag for bare features ("Garden").
type FeatureValue struct {
	Text string
	Flag bool
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	if v.Flag {
		return []byte("true"), nil
	}
	return json.Marshal(v.Text)
}

// ListingRecord is the normalized result of one detail page. It is never
// mutated after the extractor returns it.
type ListingRecord struct {
	ID             string
	Query          string
	Headline       *string
	PartialAddress *string
	Price          *string
	Description    *string
	PriceHistory   []PriceHistoryEntry
	FirstListed    *time.Time
	Features       map[string]FeatureValue
	Views          map[string]int
	Latitude       *string
	Longitude      *string
	Road           *string
	Postcode       *string
	ScrapedAt      time.Time
}

// MarshalJSON writes the record as one flat object. Feature and view keys
// sit next to the fixed keys; fixed keys win on collision.
func (r *ListingRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 16+len(r.Features)+len(r.Views))

	for k, v := range r.Features {
		out[k] = v
	}
	for k, v := range r.Views {
		out[k] = v
	}

	out["id"] = r.ID
	out["location"] = r.Query
	putOptional(out, "headline", r.Headline)
	putOptional(out, "partial_address", r.PartialAddress)
	putOptional(out, "price", r.Price)
	putOptional(out, "description", r.Description)

	history := r.PriceHistory
	if history == nil {
		history = []PriceHistoryEntry{}
	}
	out["price_history"] = history
	if r.FirstListed != nil {
		out["first_listed"] = r.FirstListed.Format(DateLayout)
	}

	putOptional(out, "lat", r.Latitude)
	putOptional(out, "long", r.Longitude)
	putOptional(out, "road", r.Road)
	putOptional(out, "postcode", r.Postcode)

	return json.Marshal(out)
}

func putOptional(out map[string]any, key string, v *string) {
	if v != nil {
		out[key] = *v
	}
}

// Dataset is the append-only output of one crawl run.
type Dataset []*ListingRecord

// IDs returns the listing identifiers in dataset order.
func (d Dataset) IDs() []string {
	ids := make([]string, 0, len(d))
	for _, r := range d {
		ids = append(ids, r.ID)
	}
	return ids
}

// InsightReport holds the computed summary over one run's dataset.
type InsightReport struct {
	TotalListings   int
	ListingsByQuery map[string]int
	PricedListings  int
	AveragePrice    float64
	MinPrice        int
	MaxPrice        int
	MostExpensive   *ListingRecord
	MostViewed      *ListingRecord
	MostViewedCount int
	Geocoded        int
	WithCoordinates int
	// StoredByQuery is the database's per-search total across runs; nil when
	// no database is configured.
	StoredByQuery map[string]int
}
