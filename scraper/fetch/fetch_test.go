package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoopla-scraper/scraper/markup"
)

func TestHTTPFetcherParsesDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`<html><body><h1 class="t">Hello</h1></body></html>`))
	}))
	defer srv.Close()

	doc, err := NewHTTPFetcher(srv.Client(), time.Second).Fetch(context.Background(), srv.URL, Static)
	require.NoError(t, err)

	txt, ok := markup.Text(doc, markup.Locator{Kind: "h1", Class: "t"}, "")
	assert.True(t, ok)
	assert.Equal(t, "Hello", txt)
}

func TestHTTPFetcherFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("<html></html>"))
		default:
			_, _ = w.Write([]byte("   \n"))
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(srv.Client(), 50*time.Millisecond)
	ctx := context.Background()

	_, err := f.Fetch(ctx, srv.URL+"/missing", Static)
	assert.ErrorIs(t, err, ErrFetchFailure)

	_, err = f.Fetch(ctx, srv.URL+"/empty", Static)
	assert.ErrorIs(t, err, ErrEmptyDocument)
	assert.ErrorIs(t, err, ErrFetchFailure)

	_, err = f.Fetch(ctx, srv.URL+"/slow", Static)
	assert.ErrorIs(t, err, ErrFetchFailure)
}

type recordingFetcher struct {
	calls []Mode
}

func (r *recordingFetcher) Fetch(_ context.Context, _ string, mode Mode) (markup.Node, error) {
	r.calls = append(r.calls, mode)
	return nil, nil
}

func TestRouterDispatchesByMode(t *testing.T) {
	static, rendered := &recordingFetcher{}, &recordingFetcher{}
	r := NewRouter(static, rendered)

	_, _ = r.Fetch(context.Background(), "u", Rendered)
	_, _ = r.Fetch(context.Background(), "u", Static)
	_, _ = r.Fetch(context.Background(), "u", Static)

	assert.Equal(t, []Mode{Rendered}, rendered.calls)
	assert.Equal(t, []Mode{Static, Static}, static.calls)
}

func TestHTTPFetcherKeepsCancellationCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPFetcher(srv.Client(), time.Second).Fetch(ctx, srv.URL, Static)
	assert.ErrorIs(t, err, ErrFetchFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBrowserFetcherMissingBinary(t *testing.T) {
	f := NewBrowserFetcher(filepath.Join(t.TempDir(), "no-such-chrome"), 5*time.Second, 0)

	doc, err := f.Fetch(context.Background(), "https://example.com", Rendered)
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrFetchFailure)
}
