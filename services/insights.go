package services

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"zoopla-scraper/models"
	"zoopla-scraper/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate summarises one run's dataset.
func (s *InsightService) Generate(dataset models.Dataset) *models.InsightReport {
	report := &models.InsightReport{
		ListingsByQuery: make(map[string]int),
	}

	if len(dataset) == 0 {
		return report
	}

	report.TotalListings = len(dataset)

	var total int
	for _, r := range dataset {
		report.ListingsByQuery[r.Query]++

		if r.Latitude != nil {
			report.WithCoordinates++
		}
		if r.Road != nil || r.Postcode != nil {
			report.Geocoded++
		}

		if views := totalViews(r); views > report.MostViewedCount {
			report.MostViewedCount = views
			report.MostViewed = r
		}

		price, ok := recordPrice(r)
		if !ok {
			continue
		}
		if report.PricedListings == 0 || price < report.MinPrice {
			report.MinPrice = price
		}
		if price > report.MaxPrice {
			report.MaxPrice = price
			report.MostExpensive = r
		}
		total += price
		report.PricedListings++
	}

	if report.PricedListings > 0 {
		report.AveragePrice = round2(float64(total) / float64(report.PricedListings))
	}

	s.logger.Debug("[insights] %d listings, %d priced, %d geocoded",
		report.TotalListings, report.PricedListings, report.Geocoded)
	return report
}

func recordPrice(r *models.ListingRecord) (int, bool) {
	if r.Price == nil {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(*r.Price))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func totalViews(r *models.ListingRecord) int {
	var n int
	for _, v := range r.Views {
		n += v
	}
	return n
}

// Print writes the report as a console summary.
func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  PROPERTY CRAWL SUMMARY\n")
	fmt.Fprintf(w, "%s\n\n", sep)

	fmt.Fprintf(w, "  Overview\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Total listings extracted : %d\n", r.TotalListings)
	fmt.Fprintf(w, "  With coordinates         : %d\n", r.WithCoordinates)
	fmt.Fprintf(w, "  Geocoded (road/postcode) : %d\n", r.Geocoded)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Asking Prices\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : £%.2f\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : £%d\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : £%d\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		fmt.Fprintf(w, "  Most Expensive Listing\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s (%s)\n", truncate(deref(r.MostExpensive.Headline), 50), r.MostExpensive.ID)
		fmt.Fprintf(w, "  Address : %s\n", deref(r.MostExpensive.PartialAddress))
		fmt.Fprintln(w)
	}

	if r.MostViewed != nil {
		fmt.Fprintf(w, "  Most Viewed Listing\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s (%s): %d views\n", truncate(deref(r.MostViewed.Headline), 40), r.MostViewed.ID, r.MostViewedCount)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "  Listings by Search\n")
	fmt.Fprintf(w, "  %s\n", thin)
	printCounts(w, r.ListingsByQuery)

	if r.StoredByQuery != nil {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  Stored in Database (all runs)\n")
		fmt.Fprintf(w, "  %s\n", thin)
		printCounts(w, r.StoredByQuery)
	}
	fmt.Fprintf(w, "\n%s\n\n", sep)
}

// printCounts lists per-search counts, largest first.
func printCounts(w io.Writer, counts map[string]int) {
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No listings\n")
		return
	}
	type queryCount struct {
		query string
		count int
	}
	var queries []queryCount
	for q, cnt := range counts {
		queries = append(queries, queryCount{q, cnt})
	}
	sort.Slice(queries, func(i, j int) bool {
		if queries[i].count == queries[j].count {
			return queries[i].query < queries[j].query
		}
		return queries[i].count > queries[j].count
	})
	for _, qc := range queries {
		fmt.Fprintf(w, "  %-30s %d\n", truncate(qc.query, 28), qc.count)
	}
}

func deref(s *string) string {
	if s == nil {
		return "n/a"
	}
	return *s
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
