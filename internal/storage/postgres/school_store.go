// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

// pgxPool is the pool surface the stores use. *pgxpool.Pool and the pgxmock
// pool both satisfy it.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const schoolSchema = `
CREATE TABLE IF NOT EXISTS driving_schools (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	rating DOUBLE PRECISION,
	review_count INTEGER,
	success_rate INTEGER,
	price_range TEXT NOT NULL DEFAULT '',
	courses JSONB,
	source TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMPTZ NOT NULL,
	UNIQUE (name, address)
);`

// SchoolStore implements store.SchoolRepository on Postgres.
type SchoolStore struct {
	pool pgxPool
}

// NewSchoolStore creates a SchoolStore with its own connection pool.
func NewSchoolStore(ctx context.Context, dsn string) (*SchoolStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &SchoolStore{pool: pool}, nil
}

// NewSchoolStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewSchoolStoreWithPool(pool pgxPool) (*SchoolStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &SchoolStore{pool: pool}, nil
}

// Init creates the driving_schools table when it does not exist yet.
func (s *SchoolStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schoolSchema); err != nil {
		return fmt.Errorf("create driving_schools table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *SchoolStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts the school or merges it into the existing row with the
// same (name, address) key. Empty strings and NULL numerics count as
// absent: they never clobber a stored value.
func (s *SchoolStore) Upsert(ctx context.Context, rec school.School) error {
	if rec.Name == "" {
		return errors.New("school name is required")
	}
	coursesJSON, err := marshalCourses(rec.Courses)
	if err != nil {
		return err
	}

	query := `
INSERT INTO driving_schools (
	name, address, url, phone, email, website, rating, review_count,
	success_rate, price_range, courses, source, scraped_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (name, address) DO UPDATE SET
	url = COALESCE(NULLIF(EXCLUDED.url, ''), driving_schools.url),
	phone = COALESCE(NULLIF(EXCLUDED.phone, ''), driving_schools.phone),
	email = COALESCE(NULLIF(EXCLUDED.email, ''), driving_schools.email),
	website = COALESCE(NULLIF(EXCLUDED.website, ''), driving_schools.website),
	rating = COALESCE(EXCLUDED.rating, driving_schools.rating),
	review_count = COALESCE(EXCLUDED.review_count, driving_schools.review_count),
	success_rate = COALESCE(EXCLUDED.success_rate, driving_schools.success_rate),
	price_range = COALESCE(NULLIF(EXCLUDED.price_range, ''), driving_schools.price_range),
	courses = COALESCE(EXCLUDED.courses, driving_schools.courses),
	source = COALESCE(NULLIF(EXCLUDED.source, ''), driving_schools.source),
	scraped_at = EXCLUDED.scraped_at;`

	args := []any{
		rec.Name,
		rec.Address,
		rec.URL,
		rec.Phone,
		rec.Email,
		rec.Website,
		rec.Rating,
		rec.ReviewCount,
		rec.SuccessRate,
		rec.PriceRange,
		coursesJSON,
		rec.Source,
		rec.ScrapedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert school %q: %w", rec.Name, err)
	}
	return nil
}

// ListAll returns every stored school ordered by name.
func (s *SchoolStore) ListAll(ctx context.Context) ([]school.School, error) {
	query := `
SELECT name, address, url, phone, email, website, rating, review_count,
	success_rate, price_range, courses, source, scraped_at
FROM driving_schools
ORDER BY name;`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	defer rows.Close()

	var schools []school.School
	for rows.Next() {
		var (
			rec         school.School
			coursesJSON []byte
		)
		err := rows.Scan(
			&rec.Name,
			&rec.Address,
			&rec.URL,
			&rec.Phone,
			&rec.Email,
			&rec.Website,
			&rec.Rating,
			&rec.ReviewCount,
			&rec.SuccessRate,
			&rec.PriceRange,
			&coursesJSON,
			&rec.Source,
			&rec.ScrapedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan school row: %w", err)
		}
		if len(coursesJSON) > 0 {
			if err := json.Unmarshal(coursesJSON, &rec.Courses); err != nil {
				return nil, fmt.Errorf("decode courses for %q: %w", rec.Name, err)
			}
		}
		schools = append(schools, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate school rows: %w", err)
	}
	return schools, nil
}

// marshalCourses encodes course facts as JSONB, with NULL for none so the
// merge treats an empty list as absent.
func marshalCourses(courses []school.CourseFact) ([]byte, error) {
	if len(courses) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(courses)
	if err != nil {
		return nil, fmt.Errorf("marshal courses: %w", err)
	}
	return data, nil
}
