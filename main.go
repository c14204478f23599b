package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zoopla-scraper/config"
	"zoopla-scraper/models"
	"zoopla-scraper/scraper/crawl"
	"zoopla-scraper/scraper/fetch"
	"zoopla-scraper/scraper/zoopla"
	"zoopla-scraper/services"
	"zoopla-scraper/storage"
	"zoopla-scraper/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		searchesFile string
		outputDir    string
		usePostgres  bool
	)

	cmd := &cobra.Command{
		Use:          "zoopla-scraper",
		Short:        "Crawl property search results and extract every listing once",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("searches") {
				cfg.SearchesFile = searchesFile
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("postgres") {
				cfg.PostgresEnabled = usePostgres
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&searchesFile, "searches", "", "YAML file listing the searches to crawl (env SEARCHES_FILE)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for the dated JSONL output (env OUTPUT_DIR)")
	cmd.Flags().BoolVar(&usePostgres, "postgres", false, "also store listings in PostgreSQL (env POSTGRES_ENABLED)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := utils.NewLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	logger.Info("=== Property crawl starting ===")

	searches, err := config.LoadSearches(cfg.SearchesFile)
	if err != nil {
		logger.Error("Failed to load searches: %v", err)
		return err
	}
	logger.Info("Config: searches: %d | max pages: %d | retries: %d | fetch timeout: %v",
		len(searches.Configs), cfg.MaxPages, cfg.MaxRetries, cfg.FetchTimeout)

	limiter, err := utils.NewRateLimiter(searches.RateLimits)
	if err != nil {
		logger.Error("Invalid rate limits: %v", err)
		return err
	}

	fetcher := fetch.NewRouter(
		fetch.NewHTTPFetcher(&http.Client{}, cfg.FetchTimeout),
		fetch.NewBrowserFetcher(cfg.ChromeBin, cfg.FetchTimeout, cfg.RenderSettle),
	)
	rateLimitRetry := utils.RetryPolicy{Logger: logger}

	indexer := zoopla.NewIndexer(zoopla.IndexerConfig{
		MaxPages:       cfg.MaxPages,
		Pacing:         cfg.ListingPacing,
		RateLimitRetry: rateLimitRetry,
	}, fetcher, limiter, logger)

	geo := services.NewGeoEnricher(
		services.NewNominatimClient(cfg.NominatimURL, cfg.GeocoderAgent, cfg.GeocodeTimeout), logger)
	details := zoopla.NewDetailScraper(cfg.BaseURL, fetcher, zoopla.NewDetailExtractor(geo, logger))

	crawler := crawl.New(crawl.Config{
		DiscoveryRetry: utils.RetryPolicy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     utils.ExponentialBackoff(cfg.RetryDelay),
			Logger:      logger,
		},
		RateLimitRetry: rateLimitRetry,
		SearchPacing:   cfg.SearchPacing,
		DetailPacing:   cfg.DetailPacing,
	}, indexer, details, limiter, logger)

	start := time.Now()
	dataset, runErr := crawler.Run(ctx, searches.Configs)
	switch {
	case runErr != nil && (len(dataset) == 0 || !errors.Is(runErr, context.Canceled)):
		// Nothing usable to write; earlier output for the day stays as it was.
		logger.Error("Crawl aborted: %v", runErr)
		return runErr
	case runErr != nil:
		logger.Warn("Crawl interrupted, keeping %d listings extracted so far", len(dataset))
	}

	logger.Info("Extracted %d listings in %.1fmin, writing...", len(dataset), time.Since(start).Minutes())
	report, err := store(cfg, dataset, logger)
	if err != nil {
		return err
	}

	services.NewInsightService(logger).Print(os.Stdout, report)
	return runErr
}

// store writes dataset to every configured sink and builds the run report.
func store(cfg *config.Config, dataset models.Dataset, logger *utils.Logger) (*models.InsightReport, error) {
	writers, pg, closeWriters, err := openWriters(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer closeWriters()

	for _, w := range writers {
		if err := w.Write(dataset); err != nil {
			logger.Error("Write failed: %v", err)
			return nil, err
		}
	}

	report := services.NewInsightService(logger).Generate(dataset)
	if pg != nil {
		counts, err := pg.CountByQuery()
		if err != nil {
			logger.Warn("Could not read stored totals: %v", err)
		} else {
			report.StoredByQuery = counts
		}
	}
	return report, nil
}

// openWriters returns the JSONL writer plus PostgreSQL when enabled.
func openWriters(cfg *config.Config, logger *utils.Logger) ([]storage.RecordWriter, *storage.PostgresWriter, func(), error) {
	jsonl, err := storage.NewJSONLWriter(cfg.OutputDir, time.Now())
	if err != nil {
		logger.Error("Failed to create JSONL writer: %v", err)
		return nil, nil, nil, err
	}
	logger.Info("Writing listings to %s", jsonl.Path())
	writers := []storage.RecordWriter{jsonl}

	var pg *storage.PostgresWriter
	if cfg.PostgresEnabled {
		pg, err = storage.NewPostgresWriter(cfg.DSN())
		if err != nil {
			_ = jsonl.Close()
			logger.Error("Failed to connect to PostgreSQL: %v", err)
			return nil, nil, nil, fmt.Errorf("postgres: %w", err)
		}
		writers = append(writers, pg)
	}

	closeAll := func() {
		for _, w := range writers {
			if err := w.Close(); err != nil {
				logger.Warn("Close writer: %v", err)
			}
		}
	}
	return writers, pg, closeAll, nil
}
