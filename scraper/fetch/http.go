package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"zoopla-scraper/scraper/markup"
)

// HTTPFetcher fetches pages with a plain GET.
type HTTPFetcher struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher; every request is bounded by timeout.
func NewHTTPFetcher(client *http.Client, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, timeout: timeout, userAgent: defaultUserAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, _ Mode) (markup.Node, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", url, ErrFetchFailure, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(url, f.timeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %w: status %d", url, ErrFetchFailure, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(url, f.timeout, err)
	}
	return parseBody(url, string(body))
}
