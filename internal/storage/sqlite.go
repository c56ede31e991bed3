package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"planet/internal/model"
	"planet/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertSources inserts new feed sources, relabels existing ones, and
// removes sources that are no longer configured.
func (s *SQLite) UpsertSources(ctx context.Context, feeds []model.FeedSource) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	for _, f := range feeds {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO feed_sources (url, label, is_active, created_at)
			 VALUES (?, ?, 1, ?)
			 ON CONFLICT(url) DO UPDATE SET label = excluded.label`,
			f.URL, f.Label, now,
		)
		if err != nil {
			return fmt.Errorf("upsert source %s: %w", f.URL, err)
		}
	}

	query := `DELETE FROM feed_sources`
	urls := make([]any, 0, len(feeds))
	if len(feeds) > 0 {
		placeholders := make([]string, 0, len(feeds))
		for _, f := range feeds {
			urls = append(urls, f.URL)
			placeholders = append(placeholders, "?")
		}
		query += ` WHERE url NOT IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if _, err := tx.ExecContext(ctx, query, urls...); err != nil {
		return fmt.Errorf("remove unconfigured sources: %w", err)
	}

	return tx.Commit()
}

// ListSources returns the whole registry in insertion order.
func (s *SQLite) ListSources(ctx context.Context) ([]model.FeedSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, label, is_active, last_activity_at, created_at
		 FROM feed_sources ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// ListActiveSources returns only active sources, in insertion order.
func (s *SQLite) ListActiveSources(ctx context.Context) ([]model.FeedSource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, label, is_active, last_activity_at, created_at
		 FROM feed_sources WHERE is_active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// SetActive flips the active flag of one source.
func (s *SQLite) SetActive(ctx context.Context, url string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE feed_sources SET is_active = ? WHERE url = ?`,
		boolToInt(active), url,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("unknown source %s", url)
	}
	return nil
}

// TouchActivity records the latest entry-producing fetch for a source.
func (s *SQLite) TouchActivity(ctx context.Context, url string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feed_sources SET last_activity_at = ? WHERE url = ?`,
		at.UTC().Format(timeLayout), url,
	)
	if err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

// RecordRun inserts a run audit record and populates its ID.
func (s *SQLite) RecordRun(ctx context.Context, run *model.Run) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (started_at, finished_at, sources_total, sources_failed, entry_count)
		 VALUES (?, ?, ?, ?, ?)`,
		run.StartedAt.UTC().Format(timeLayout),
		run.FinishedAt.UTC().Format(timeLayout),
		run.SourcesTotal, run.SourcesFailed, run.EntryCount,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// LastRuns returns the n most recent runs, newest first.
func (s *SQLite) LastRuns(ctx context.Context, n int) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, finished_at, sources_total, sources_failed, entry_count
		 FROM runs ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.SourcesTotal, &r.SourcesFailed, &r.EntryCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanSources(rows *sql.Rows) ([]model.FeedSource, error) {
	var sources []model.FeedSource
	for rows.Next() {
		var f model.FeedSource
		var isActive int
		var lastActivity, created sql.NullString
		if err := rows.Scan(&f.ID, &f.URL, &f.Label, &isActive, &lastActivity, &created); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		f.Active = isActive == 1
		if lastActivity.Valid {
			t, _ := time.Parse(timeLayout, lastActivity.String)
			f.LastActivityAt = &t
		}
		if created.Valid {
			f.CreatedAt, _ = time.Parse(timeLayout, created.String)
		}
		sources = append(sources, f)
	}
	return sources, rows.Err()
}
