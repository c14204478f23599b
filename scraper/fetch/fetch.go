// Package fetch retrieves pages and hands them back as parsed markup.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zoopla-scraper/scraper/markup"
)

// Mode selects how a page is retrieved.
type Mode int

const (
	// Static issues a plain HTTP GET.
	Static Mode = iota
	// Rendered loads the page in a headless browser so scripts run first.
	Rendered
)

func (m Mode) String() string {
	if m == Rendered {
		return "rendered"
	}
	return "static"
}

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var (
	// ErrFetchFailure covers unreachable pages, bad statuses, timeouts and empty bodies.
	ErrFetchFailure = errors.New("fetch failure")
	// ErrEmptyDocument is returned when the page body is blank.
	ErrEmptyDocument = fmt.Errorf("%w: empty document", ErrFetchFailure)
)

// PageFetcher returns the parsed document at url.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, mode Mode) (markup.Node, error)
}

// Router sends each request to the fetcher registered for its mode.
type Router struct {
	static   PageFetcher
	rendered PageFetcher
}

// NewRouter creates a Router over a static and a rendering fetcher.
func NewRouter(static, rendered PageFetcher) *Router {
	return &Router{static: static, rendered: rendered}
}

func (r *Router) Fetch(ctx context.Context, url string, mode Mode) (markup.Node, error) {
	if mode == Rendered {
		return r.rendered.Fetch(ctx, url, mode)
	}
	return r.static.Fetch(ctx, url, mode)
}

// parseBody turns raw HTML into a Node, rejecting blank pages.
func parseBody(url, body string) (markup.Node, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("%s: %w", url, ErrEmptyDocument)
	}
	doc, err := markup.ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", url, ErrFetchFailure, err)
	}
	return doc, nil
}

// classify wraps transport errors as fetch failures, naming timeouts
// explicitly. The cause stays in the chain so callers can tell a cancelled
// run apart from an unreachable page.
func classify(url string, timeout time.Duration, err error) error {
	if errors.Is(err, ErrFetchFailure) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: timed out after %v: %w", url, ErrFetchFailure, timeout, err)
	}
	return fmt.Errorf("%s: %w: %w", url, ErrFetchFailure, err)
}
