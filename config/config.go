package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"zoopla-scraper/models"
	"zoopla-scraper/utils"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresEnabled  bool
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	LogLevel     string
	SearchesFile string
	OutputDir    string
	BaseURL      string
	ChromeBin    string

	FetchTimeout   time.Duration
	RenderSettle   time.Duration
	MaxPages       int
	MaxRetries     int
	RetryDelay     time.Duration
	ListingPacing  time.Duration
	SearchPacing   time.Duration
	DetailPacing   time.Duration
	NominatimURL   string
	GeocoderAgent  string
	GeocodeTimeout time.Duration
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresEnabled:  getEnvBool("POSTGRES_ENABLED", false),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "property_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LogLevel:     getEnv("LOG_LEVEL", "info"),
		SearchesFile: getEnv("SEARCHES_FILE", "configs/searches.yaml"),
		OutputDir:    getEnv("OUTPUT_DIR", "./data"),
		BaseURL:      getEnv("BASE_URL", "https://www.zoopla.co.uk"),
		ChromeBin:    getEnv("CHROME_BIN", ""),

		FetchTimeout:   getEnvDuration("FETCH_TIMEOUT", 60*time.Second),
		RenderSettle:   getEnvDuration("RENDER_SETTLE", 2*time.Second),
		MaxPages:       getEnvInt("MAX_PAGES", 50),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryDelay:     getEnvDuration("RETRY_DELAY", 2*time.Second),
		ListingPacing:  getEnvDuration("LISTING_PACING", time.Second),
		SearchPacing:   getEnvDuration("SEARCH_PACING", time.Second),
		DetailPacing:   getEnvDuration("DETAIL_PACING", 100*time.Millisecond),
		NominatimURL:   getEnv("NOMINATIM_URL", "https://nominatim.openstreetmap.org"),
		GeocoderAgent:  getEnv("GEOCODER_USER_AGENT", "zoopla-scraper"),
		GeocodeTimeout: getEnvDuration("GEOCODE_TIMEOUT", 10*time.Second),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// SearchFile is the YAML document listing what to crawl.
type SearchFile struct {
	Defaults   models.SearchFilters       `yaml:"defaults"`
	RateLimits map[string]utils.RateClass `yaml:"rate_limits"`
	Searches   []SearchEntry              `yaml:"searches"`
}

// SearchEntry is one search; zero filter fields inherit the defaults.
type SearchEntry struct {
	Query   string                `yaml:"q"`
	Link    string                `yaml:"link"`
	Filters *models.SearchFilters `yaml:"filters"`
}

// DefaultFilters are used when the search file sets none.
var DefaultFilters = models.SearchFilters{BedsMin: 2, PriceMax: 350000, Radius: 1, PageSize: 100}

// DefaultSearches are crawled when no search file exists.
var DefaultSearches = []SearchEntry{
	{Query: "Esher Station, Surrey", Link: "www.zoopla.co.uk/for-sale/property/station/rail/esher/"},
	{Query: "Kingston Vale, London", Link: "www.zoopla.co.uk/for-sale/houses/kingston-vale/"},
}

// Searches is the resolved crawl plan.
type Searches struct {
	Configs    []models.SearchConfig
	RateLimits map[string]utils.RateClass
}

// LoadSearches reads the search file at path. A missing file yields the
// built-in searches with default filters and rate limits.
func LoadSearches(path string) (*Searches, error) {
	file := SearchFile{}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[config] %s not found, using built-in searches", path)
	case err != nil:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	return resolve(file)
}

func resolve(file SearchFile) (*Searches, error) {
	defaults := mergeFilters(DefaultFilters, file.Defaults)

	entries := file.Searches
	if len(entries) == 0 {
		entries = DefaultSearches
	}

	out := &Searches{RateLimits: utils.DefaultRateClasses()}
	for class, rc := range file.RateLimits {
		out.RateLimits[class] = rc
	}

	for i, e := range entries {
		if e.Query == "" || e.Link == "" {
			return nil, fmt.Errorf("config: search %d needs both q and link", i+1)
		}
		filters := defaults
		if e.Filters != nil {
			filters = mergeFilters(defaults, *e.Filters)
		}
		out.Configs = append(out.Configs, models.SearchConfig{Query: e.Query, Link: e.Link, Filters: filters})
	}
	return out, nil
}

func mergeFilters(base, override models.SearchFilters) models.SearchFilters {
	if override.BedsMin != 0 {
		base.BedsMin = override.BedsMin
	}
	if override.PriceMax != 0 {
		base.PriceMax = override.PriceMax
	}
	if override.Radius != 0 {
		base.Radius = override.Radius
	}
	if override.PageSize != 0 {
		base.PageSize = override.PageSize
	}
	return base
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err == nil {
			return d
		}
	}
	return fallback
}
