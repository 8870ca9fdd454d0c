package telemetry

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements MetricsStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the telemetry database at
// the given path and ensures the schema exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry db %s: %w", path, err)
	}

	// Telemetry writes come from the flush loop and the scheduler;
	// a single connection avoids SQLITE_BUSY between them.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_outcome_stats (
		date TEXT NOT NULL,
		outcome TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, outcome)
	);

	CREATE TABLE IF NOT EXISTS query_latency_stats (
		date TEXT NOT NULL,
		bucket TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, bucket)
	);

	CREATE TABLE IF NOT EXISTS usage_stats (
		date TEXT PRIMARY KEY,
		queries INTEGER NOT NULL DEFAULT 0,
		tokens INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS query_terms (
		term TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);

	CREATE TABLE IF NOT EXISTS job_history (
		job_id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		downloaded INTEGER NOT NULL DEFAULT 0,
		processed INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_job_history_started ON job_history(started_at DESC);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create telemetry schema: %w", err)
	}
	return nil
}

// SaveOutcomeCounts upserts daily outcome counts.
func (s *SQLiteStore) SaveOutcomeCounts(date string, counts map[Outcome]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_outcome_stats (date, outcome, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, outcome) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for outcome, count := range counts {
		if _, err := stmt.Exec(date, string(outcome), count); err != nil {
			return fmt.Errorf("upsert outcome count: %w", err)
		}
	}
	return tx.Commit()
}

// GetOutcomeCounts retrieves summed outcome counts for a date range.
func (s *SQLiteStore) GetOutcomeCounts(from, to string) (map[Outcome]int64, error) {
	rows, err := s.db.Query(`
		SELECT outcome, SUM(count)
		FROM query_outcome_stats
		WHERE date >= ? AND date <= ?
		GROUP BY outcome
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("query outcome counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[Outcome]int64)
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		counts[Outcome(outcome)] = count
	}
	return counts, rows.Err()
}

// SaveLatencyCounts upserts daily latency histogram counts.
func (s *SQLiteStore) SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_latency_stats (date, bucket, count)
		VALUES (?, ?, ?)
		ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for bucket, count := range counts {
		if _, err := stmt.Exec(date, string(bucket), count); err != nil {
			return fmt.Errorf("upsert latency count: %w", err)
		}
	}
	return tx.Commit()
}

// SaveUsage adds queries and estimated tokens to the daily totals.
func (s *SQLiteStore) SaveUsage(date string, queries, tokens int64) error {
	_, err := s.db.Exec(`
		INSERT INTO usage_stats (date, queries, tokens)
		VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			queries = queries + excluded.queries,
			tokens = tokens + excluded.tokens
	`, date, queries, tokens)
	if err != nil {
		return fmt.Errorf("upsert usage: %w", err)
	}
	return nil
}

// GetUsage retrieves summed usage for a date range.
func (s *SQLiteStore) GetUsage(from, to string) (queries, tokens int64, err error) {
	row := s.db.QueryRow(`
		SELECT COALESCE(SUM(queries), 0), COALESCE(SUM(tokens), 0)
		FROM usage_stats
		WHERE date >= ? AND date <= ?
	`, from, to)
	if err := row.Scan(&queries, &tokens); err != nil {
		return 0, 0, fmt.Errorf("query usage: %w", err)
	}
	return queries, tokens, nil
}

// UpsertTermCounts updates term frequency counts.
func (s *SQLiteStore) UpsertTermCounts(terms map[string]int64) error {
	if len(terms) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO query_terms (term, count, last_seen)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(term) DO UPDATE SET
			count = count + excluded.count,
			last_seen = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for term, count := range terms {
		if _, err := stmt.Exec(term, count); err != nil {
			return fmt.Errorf("upsert term count: %w", err)
		}
	}
	return tx.Commit()
}

// GetTopTerms retrieves the top N terms by frequency.
func (s *SQLiteStore) GetTopTerms(limit int) ([]TermCount, error) {
	rows, err := s.db.Query(`
		SELECT term, count
		FROM query_terms
		ORDER BY count DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top terms: %w", err)
	}
	defer rows.Close()

	var terms []TermCount
	for rows.Next() {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		terms = append(terms, tc)
	}
	return terms, rows.Err()
}

// SaveJobRun appends one ingestion run to the history log.
func (s *SQLiteStore) SaveJobRun(run JobRun) error {
	_, err := s.db.Exec(`
		INSERT INTO job_history (job_id, started_at, downloaded, processed, elapsed_ms, outcome)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET
			downloaded = excluded.downloaded,
			processed = excluded.processed,
			elapsed_ms = excluded.elapsed_ms,
			outcome = excluded.outcome
	`, run.JobID, run.StartedAt.UTC().Format(time.RFC3339), run.Downloaded, run.Processed,
		run.Elapsed.Milliseconds(), run.Outcome)
	if err != nil {
		return fmt.Errorf("insert job run: %w", err)
	}
	return nil
}

// RecentJobRuns retrieves the newest job runs, most recent first.
func (s *SQLiteStore) RecentJobRuns(limit int) ([]JobRun, error) {
	rows, err := s.db.Query(`
		SELECT job_id, started_at, downloaded, processed, elapsed_ms, outcome
		FROM job_history
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job history: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var run JobRun
		var started string
		var elapsedMS int64
		if err := rows.Scan(&run.JobID, &started, &run.Downloaded, &run.Processed, &elapsedMS, &run.Outcome); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, started); err == nil {
			run.StartedAt = ts
		}
		run.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
