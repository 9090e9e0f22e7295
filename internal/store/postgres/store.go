// Package postgres persists runs and accepted pages in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brandsignal/harvester/internal/collector"
)

// ErrRunNotFound indicates the run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements collector.PageStore on a pgx connection pool.
//
// Expected schema:
//
//	CREATE TABLE runs (
//		id UUID PRIMARY KEY,
//		query TEXT NOT NULL,
//		status TEXT NOT NULL,
//		submitted_at TIMESTAMPTZ NOT NULL,
//		started_at TIMESTAMPTZ,
//		finished_at TIMESTAMPTZ,
//		error_text TEXT NOT NULL DEFAULT '',
//		stats JSONB NOT NULL DEFAULT '{}'
//	);
//	CREATE TABLE pages (
//		run_id UUID NOT NULL REFERENCES runs (id),
//		url TEXT NOT NULL,
//		title TEXT NOT NULL,
//		body TEXT NOT NULL,
//		source_type TEXT NOT NULL,
//		tier TEXT NOT NULL,
//		core_domain BOOLEAN NOT NULL,
//		rendered BOOLEAN NOT NULL,
//		rank INT NOT NULL,
//		fetched_at TIMESTAMPTZ NOT NULL,
//		duration_ms BIGINT NOT NULL,
//		PRIMARY KEY (run_id, url)
//	);
type Store struct {
	pool pool
}

// New connects a Store using the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a Store from an existing pool, primarily for
// testing.
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts the run row.
func (s *Store) CreateRun(ctx context.Context, run collector.Run) error {
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	query := `
INSERT INTO runs (id, query, status, submitted_at, started_at, finished_at, error_text, stats)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err = s.pool.Exec(ctx, query,
		run.ID, run.Query, string(run.Status),
		run.Submitted, run.Started, run.Finished,
		run.ErrorText, stats,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus records a status transition with its stats snapshot.
func (s *Store) UpdateRunStatus(ctx context.Context, runID string, status collector.RunStatus, errText string, stats collector.RunStats) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal run stats: %w", err)
	}
	query := `
UPDATE runs
SET status = $1, error_text = $2, stats = $3, finished_at = NOW()
WHERE id = $4`
	tag, err := s.pool.Exec(ctx, query, string(status), errText, payload, runID)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run status: %w", ErrRunNotFound)
	}
	return nil
}

// RecordPage inserts one accepted page.
func (s *Store) RecordPage(ctx context.Context, runID string, page collector.Page) error {
	query := `
INSERT INTO pages (run_id, url, title, body, source_type, tier, core_domain, rendered, rank, fetched_at, duration_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (run_id, url) DO NOTHING`
	_, err := s.pool.Exec(ctx, query,
		runID, page.URL, page.Title, page.Body,
		string(page.SourceType), string(page.Tier),
		page.CoreDomain, page.Rendered, page.Rank,
		page.FetchedAt, page.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return nil
}

// GetRun fetches one run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (collector.Run, error) {
	query := `
SELECT id, query, status, submitted_at, started_at, finished_at, error_text, stats
FROM runs WHERE id = $1`

	var (
		run    collector.Run
		status string
		stats  []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID, &run.Query, &status,
		&run.Submitted, &run.Started, &run.Finished,
		&run.ErrorText, &stats,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return collector.Run{}, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return collector.Run{}, fmt.Errorf("select run: %w", err)
	}
	run.Status = collector.RunStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &run.Stats); err != nil {
			return collector.Run{}, fmt.Errorf("unmarshal run stats: %w", err)
		}
	}
	return run, nil
}

// ListPages returns the run's accepted pages ordered by rank.
func (s *Store) ListPages(ctx context.Context, runID string) ([]collector.Page, error) {
	query := `
SELECT url, title, body, source_type, tier, core_domain, rendered, rank, fetched_at, duration_ms
FROM pages WHERE run_id = $1
ORDER BY rank`

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("select pages: %w", err)
	}
	defer rows.Close()

	var pages []collector.Page
	for rows.Next() {
		var (
			page       collector.Page
			sourceType string
			tier       string
			durationMS int64
		)
		if err := rows.Scan(
			&page.URL, &page.Title, &page.Body,
			&sourceType, &tier,
			&page.CoreDomain, &page.Rendered, &page.Rank,
			&page.FetchedAt, &durationMS,
		); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.SourceType = collector.SourceType(sourceType)
		page.Tier = collector.Tier(tier)
		page.Duration = time.Duration(durationMS) * time.Millisecond
		pages = append(pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pages: %w", err)
	}
	return pages, nil
}
