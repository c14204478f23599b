package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"zoopla-scraper/utils"
)

// ErrMalformedResponse is returned when the geocoder answers with something unreadable.
var ErrMalformedResponse = errors.New("malformed geocoder response")

// ReverseGeocoder resolves coordinates to address components. A nil map
// with a nil error means "no result".
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon string) (map[string]string, error)
}

// DefaultNominatimURL is the public Nominatim endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

// NominatimClient calls the Nominatim reverse endpoint. Requests are throttled
// to one per second, matching the public service's usage policy.
type NominatimClient struct {
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewNominatimClient creates a NominatimClient.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	return &NominatimClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

type nominatimReverse struct {
	Error   string            `json:"error"`
	Address map[string]string `json:"address"`
}

func (c *NominatimClient) Reverse(ctx context.Context, lat, lon string) (map[string]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("lat", lat)
	params.Set("lon", lon)
	params.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("nominatim: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nominatim: reverse %s,%s: %w", lat, lon, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim: reverse %s,%s: status %d", lat, lon, resp.StatusCode)
	}

	var body nominatimReverse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if body.Error != "" || len(body.Address) == 0 {
		return nil, nil
	}
	return body.Address, nil
}

// GeoEnricher turns coordinates into a road/postcode pair. It never fails a
// listing: lookup errors and empty answers are logged and reported as !ok.
type GeoEnricher struct {
	geocoder ReverseGeocoder
	logger   *utils.Logger
}

// NewGeoEnricher creates a GeoEnricher over geocoder.
func NewGeoEnricher(geocoder ReverseGeocoder, logger *utils.Logger) *GeoEnricher {
	return &GeoEnricher{geocoder: geocoder, logger: logger}
}

// Enrich returns the road and postcode at lat,lon. Either may be nil if the
// address lacks it.
func (g *GeoEnricher) Enrich(ctx context.Context, lat, lon string) (*string, *string, bool) {
	addr, err := g.geocoder.Reverse(ctx, lat, lon)
	if err != nil {
		g.logger.Warn("[geo] failed to get an address for %s,%s (continuing): %v", lat, lon, err)
		return nil, nil, false
	}
	if addr == nil {
		g.logger.Info("[geo] no address found for %s,%s", lat, lon)
		return nil, nil, false
	}
	return optional(addr["road"]), optional(addr["postcode"]), true
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
