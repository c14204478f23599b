package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"zoopla-scraper/models"
)

var (
	// ordinalRegexp matches a day number followed by its ordinal suffix ("21st").
	ordinalRegexp = regexp.MustCompile(`(\d)(st|nd|rd|th)`)
	// digitsRegexp captures the first integer in a string.
	digitsRegexp = regexp.MustCompile(`\d+`)
)

const dateLabelLayout = "2 Jan 2006"

// ParseDateLabel parses labels such as "21st Mar 2022" or "1 Jun 2021".
func ParseDateLabel(label string) (time.Time, error) {
	cleaned := ordinalRegexp.ReplaceAllString(NormaliseText(label), "$1")
	d, err := time.Parse(dateLabelLayout, cleaned)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date label %q: %w", label, err)
	}
	return d, nil
}

// ParsePriceLabel turns "£1,250,000" into 1250000.
func ParsePriceLabel(label string) (int, error) {
	cleaned := strings.TrimSpace(label)
	cleaned = strings.TrimLeft(cleaned, "£$€ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse price label %q: %w", label, err)
	}
	return n, nil
}

// ParseFeature splits "3 bedrooms" into ("bedroom", "3"). A single-token
// feature such as "Garden" becomes a flag: ("garden", true).
func ParseFeature(text string) (string, models.FeatureValue, bool) {
	text = strings.TrimSuffix(NormaliseText(text), "s")
	tokens := strings.Fields(text)
	switch len(tokens) {
	case 0:
		return "", models.FeatureValue{}, false
	case 1:
		return NormaliseKey(tokens[0]), models.FeatureValue{Flag: true}, true
	default:
		return NormaliseKey(strings.Join(tokens[1:], " ")), models.FeatureValue{Text: tokens[0]}, true
	}
}

// ParseViewCount splits "Last 30 days: 120 page views" into ("views_last_30_days", 120).
func ParseViewCount(text string) (string, int, bool) {
	label, countText, found := strings.Cut(strings.ReplaceAll(text, "\n", ""), ":")
	if !found {
		return "", 0, false
	}
	label = NormaliseText(label)
	if label == "" {
		return "", 0, false
	}
	match := digitsRegexp.FindString(countText)
	if match == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return "", 0, false
	}
	return "views_" + NormaliseKey(label), n, true
}

// NormaliseKey lowercases and replaces spaces with underscores.
func NormaliseKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(NormaliseText(s), " ", "_"))
}

// NormaliseText strips leading/trailing whitespace and collapses internal whitespace.
func NormaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
