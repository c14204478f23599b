package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"zoopla-scraper/models"
)

const listingColumns = 15

// PostgresWriter persists listing records to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return NewPostgresWriterFromDB(db)
}

// NewPostgresWriterFromDB wraps an open database and runs migrations.
func NewPostgresWriterFromDB(db *sql.DB) (*PostgresWriter, error) {
	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS listings (
			listing_id      TEXT        PRIMARY KEY,
			query_label     TEXT        NOT NULL,
			headline        TEXT,
			partial_address TEXT,
			price           TEXT,
			description     TEXT,
			first_listed    DATE,
			price_history   JSONB       NOT NULL DEFAULT '[]',
			features        JSONB       NOT NULL DEFAULT '{}',
			views           JSONB       NOT NULL DEFAULT '{}',
			latitude        TEXT,
			longitude       TEXT,
			road            TEXT,
			postcode        TEXT,
			scraped_at      TIMESTAMPTZ,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		ALTER TABLE listings ADD COLUMN IF NOT EXISTS scraped_at TIMESTAMPTZ;

		CREATE INDEX IF NOT EXISTS idx_listings_query    ON listings(query_label);
		CREATE INDEX IF NOT EXISTS idx_listings_postcode ON listings(postcode);
	`)
	return err
}

// Write batch-inserts records. Listings already stored are left untouched.
func (pw *PostgresWriter) Write(records models.Dataset) error {
	if len(records) == 0 {
		return nil
	}

	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		if err := pw.insertBatch(records[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (pw *PostgresWriter) insertBatch(batch models.Dataset) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*listingColumns)

	for idx, r := range batch {
		history, err := json.Marshal(nonNilHistory(r.PriceHistory))
		if err != nil {
			return fmt.Errorf("postgres: encode price history %s: %w", r.ID, err)
		}
		features, err := json.Marshal(nonNilMap(r.Features))
		if err != nil {
			return fmt.Errorf("postgres: encode features %s: %w", r.ID, err)
		}
		views, err := json.Marshal(nonNilMap(r.Views))
		if err != nil {
			return fmt.Errorf("postgres: encode views %s: %w", r.ID, err)
		}

		placeholders := make([]string, listingColumns)
		for c := range placeholders {
			placeholders[c] = fmt.Sprintf("$%d", idx*listingColumns+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			r.ID, r.Query, nullString(r.Headline), nullString(r.PartialAddress), nullString(r.Price),
			nullString(r.Description), nullDate(r.FirstListed), string(history), string(features), string(views),
			nullString(r.Latitude), nullString(r.Longitude), nullString(r.Road), nullString(r.Postcode),
			nullTimestamp(r.ScrapedAt))
	}

	query := fmt.Sprintf(`
		INSERT INTO listings (listing_id, query_label, headline, partial_address, price,
			description, first_listed, price_history, features, views,
			latitude, longitude, road, postcode, scraped_at)
		VALUES %s
		ON CONFLICT (listing_id) DO NOTHING
	`, strings.Join(valueStrings, ","))

	if _, err := pw.db.Exec(query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert batch: %w", err)
	}
	return nil
}

func nonNilHistory(h []models.PriceHistoryEntry) []models.PriceHistoryEntry {
	if h == nil {
		return []models.PriceHistoryEntry{}
	}
	return h
}

func nonNilMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimestamp(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// CountByQuery returns how many stored listings each search label contributed.
func (pw *PostgresWriter) CountByQuery() (map[string]int, error) {
	rows, err := pw.db.Query(`
		SELECT query_label, COUNT(*)
		FROM listings
		GROUP BY query_label
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count by query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		counts[label] = n
	}
	return counts, rows.Err()
}
