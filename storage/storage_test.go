package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zoopla-scraper/models"
)

func sp(s string) *string { return &s }

func sampleRecords() models.Dataset {
	listed := time.Date(2022, time.March, 21, 0, 0, 0, 0, time.UTC)
	scraped := time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)
	return models.Dataset{
		{
			ID:           "61234567",
			Query:        "Esher Station, Surrey",
			Headline:     sp("2 bed flat for sale"),
			Price:        sp("325000"),
			PriceHistory: []models.PriceHistoryEntry{{Date: listed, Price: 325000, Event: "First listed"}},
			FirstListed:  &listed,
			Features:     map[string]models.FeatureValue{"bedroom": {Text: "2"}},
			Views:        map[string]int{"views_last_30_days": 10},
			ScrapedAt:    scraped,
		},
		{ID: "70000001", Query: "Kingston Vale, London"},
	}
}

func TestOutputFileName(t *testing.T) {
	assert.Equal(t, "zoopla_20261016.jsonl", OutputFileName(time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)))
}

func TestJSONLWriterOneRecordPerLine(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	w, err := NewJSONLWriter(dir, time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	require.NoError(t, w.Write(sampleRecords()))
	require.NoError(t, w.Close())

	assert.Equal(t, filepath.Join(dir, "zoopla_20261016.jsonl"), w.Path())

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	assert.Equal(t, "61234567", lines[0]["id"])
	assert.Equal(t, "2", lines[0]["bedroom"])
	assert.Equal(t, "20220321", lines[0]["first_listed"])
	assert.Equal(t, "Kingston Vale, London", lines[1]["location"])
	_, hasHeadline := lines[1]["headline"]
	assert.False(t, hasHeadline)
}

func TestJSONLWriterReplacesSameDayFileOnlyOnClose(t *testing.T) {
	dir := t.TempDir()
	runDate := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)
	target := filepath.Join(dir, OutputFileName(runDate))
	require.NoError(t, os.WriteFile(target, []byte(`{"id":"earlier-run"}`+"\n"), 0644))

	w, err := NewJSONLWriter(dir, runDate)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecords()))

	before, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"id":"earlier-run"}`+"\n", string(before))

	require.NoError(t, w.Close())

	after, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(after), `"id":"61234567"`)
	assert.NotContains(t, string(after), "earlier-run")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file must not be left behind")
}

func newMockWriter(t *testing.T) (*PostgresWriter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS listings").WillReturnResult(sqlmock.NewResult(0, 0))
	pw, err := NewPostgresWriterFromDB(db)
	require.NoError(t, err)
	return pw, mock
}

func TestPostgresWriterInsertsBatch(t *testing.T) {
	pw, mock := newMockWriter(t)
	records := sampleRecords()

	mock.ExpectExec("INSERT INTO listings").
		WithArgs(
			"61234567", "Esher Station, Surrey", "2 bed flat for sale", nil, "325000",
			nil, sqlmock.AnyArg(), sqlmock.AnyArg(), `{"bedroom":"2"}`, `{"views_last_30_days":10}`,
			nil, nil, nil, nil, time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC),
			"70000001", "Kingston Vale, London", nil, nil, nil,
			nil, nil, "[]", "{}", "{}",
			nil, nil, nil, nil, nil,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, pw.Write(records))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterEmptyIsNoop(t *testing.T) {
	pw, mock := newMockWriter(t)

	require.NoError(t, pw.Write(nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriterCountByQuery(t *testing.T) {
	pw, mock := newMockWriter(t)

	mock.ExpectQuery("SELECT query_label, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"query_label", "count"}).
			AddRow("Esher Station, Surrey", 12).
			AddRow("Kingston Vale, London", 3))

	counts, err := pw.CountByQuery()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Esher Station, Surrey": 12, "Kingston Vale, London": 3}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}
