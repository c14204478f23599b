package zoopla

import (
	"net/url"
	"strconv"
	"strings"

	"zoopla-scraper/models"
)

// DefaultBaseURL is the site root used for detail pages.
const DefaultBaseURL = "https://www.zoopla.co.uk"

// SearchURL builds the results URL for one page of a search.
func SearchURL(cfg models.SearchConfig, page int) string {
	params := url.Values{}
	params.Set("beds_min", strconv.Itoa(cfg.Filters.BedsMin))
	params.Set("price_max", strconv.Itoa(cfg.Filters.PriceMax))
	params.Set("radius", strconv.Itoa(cfg.Filters.Radius))
	params.Set("page_size", strconv.Itoa(cfg.Filters.PageSize))
	params.Set("pn", strconv.Itoa(page))
	params.Set("q", cfg.Query)

	link := cfg.Link
	if !strings.Contains(link, "://") {
		link = "https://" + link
	}
	return link + "?" + params.Encode()
}

// DetailURL builds the detail page URL for a listing.
func DetailURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/for-sale/details/" + url.PathEscape(id)
}

// listingIDFromHref extracts "12345" from ".../details/12345?search_identifier=...".
func listingIDFromHref(href string) (string, bool) {
	_, rest, found := strings.Cut(href, detailsPathMarker)
	if !found {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "?")
	id = strings.Trim(id, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

// coordinatesFromMapSrc pulls "lat,long" out of a static map image URL.
func coordinatesFromMapSrc(src string) (string, string, bool) {
	_, rest, found := strings.Cut(src, mapPinMarker)
	if !found {
		return "", "", false
	}
	pair, _, _ := strings.Cut(rest, "&")
	parts := strings.Split(pair, ",")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
