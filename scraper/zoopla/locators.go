package zoopla

import "zoopla-scraper/scraper/markup"

// Element locators for the search result and detail pages.
var (
	listingLinkLoc = markup.Locator{Kind: "a", Attr: "data-testid", Value: "listing-details-link"}

	priceHistoryItemLoc = markup.Locator{Kind: "div", Class: "dp-price-history__item"}
	priceHistoryPartLoc = markup.Locator{Kind: "span", Attr: "class", Value: "dp-price-history", Contains: true}

	summaryLoc        = markup.Locator{Kind: "article", Class: "dp-sidebar-wrapper__summary"}
	headlineLoc       = markup.Locator{Kind: "h1", Class: "ui-property-summary__title ui-title-subgroup"}
	partialAddressLoc = markup.Locator{Kind: "h2", Class: "ui-property-summary__address"}
	priceLoc          = markup.Locator{Kind: "p", Class: "ui-pricing__main-price ui-text-t4"}

	detailsTabLoc   = markup.Locator{Kind: "section", ID: "property-details-tab"}
	descriptionLoc  = markup.Locator{Kind: "div", Class: "dp-description__text"}
	featureLoc      = markup.Locator{Kind: "span", Class: "dp-features-list__text"}
	viewCountLoc    = markup.Locator{Kind: "p", Class: "dp-view-count__legend"}
	staticMapLoc    = markup.Locator{Kind: "img", Class: "ui-static-map__img"}
	staticMapSrcKey = "data-src"
)

const (
	detailsPathMarker = "details/"
	mapPinMarker      = "/maps/markers/pin-default.png%7C"
	priceStripChars   = "£,"
)
