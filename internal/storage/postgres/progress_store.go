package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewandolfski/driving-school-scraper/internal/store"
)

const progressSchema = `
CREATE TABLE IF NOT EXISTS scrape_progress (
	id SERIAL PRIMARY KEY,
	city_url TEXT NOT NULL UNIQUE,
	city_index INTEGER NOT NULL,
	total_cities INTEGER NOT NULL,
	schools_found INTEGER NOT NULL DEFAULT 0,
	completed_at TIMESTAMPTZ NOT NULL
);`

// ProgressStore implements store.ProgressRepository on Postgres.
type ProgressStore struct {
	pool pgxPool
}

// NewProgressStore creates a ProgressStore with its own connection pool.
func NewProgressStore(ctx context.Context, dsn string) (*ProgressStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProgressStore{pool: pool}, nil
}

// NewProgressStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProgressStoreWithPool(pool pgxPool) (*ProgressStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ProgressStore{pool: pool}, nil
}

// Init creates the scrape_progress table when it does not exist yet.
func (s *ProgressStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, progressSchema); err != nil {
		return fmt.Errorf("create scrape_progress table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *ProgressStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Exists reports whether the unit already has a completion record.
func (s *ProgressStore) Exists(ctx context.Context, unitURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM scrape_progress WHERE city_url = $1);`,
		unitURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check progress for %s: %w", unitURL, err)
	}
	return exists, nil
}

// Upsert records the unit as completed, replacing any earlier record for
// the same URL.
func (s *ProgressStore) Upsert(ctx context.Context, rec store.ProgressRecord) error {
	query := `
INSERT INTO scrape_progress (city_url, city_index, total_cities, schools_found, completed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (city_url) DO UPDATE SET
	city_index = EXCLUDED.city_index,
	total_cities = EXCLUDED.total_cities,
	schools_found = EXCLUDED.schools_found,
	completed_at = EXCLUDED.completed_at;`

	_, err := s.pool.Exec(ctx, query,
		rec.UnitURL, rec.UnitIndex, rec.TotalUnits, rec.SchoolsFound, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert progress for %s: %w", rec.UnitURL, err)
	}
	return nil
}

// ListCompleted returns the URLs of every completed unit in discovery order.
func (s *ProgressStore) ListCompleted(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT city_url FROM scrape_progress ORDER BY city_index;`)
	if err != nil {
		return nil, fmt.Errorf("list completed units: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("scan progress row: %w", err)
		}
		urls = append(urls, url)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress rows: %w", err)
	}
	return urls, nil
}
