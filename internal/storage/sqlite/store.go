// Package sqlite provides file-backed persistence for single-machine runs,
// mirroring the Postgres stores over database/sql.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // database/sql driver

	"github.com/lewandolfski/driving-school-scraper/internal/school"
	"github.com/lewandolfski/driving-school-scraper/internal/store"
)

// Open prepares a SQLite handle. SQLite allows one writer at a time, so the
// pool is capped at a single connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	return db, nil
}

const schoolSchema = `
CREATE TABLE IF NOT EXISTS driving_schools (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	website TEXT NOT NULL DEFAULT '',
	rating REAL,
	review_count INTEGER,
	success_rate INTEGER,
	price_range TEXT NOT NULL DEFAULT '',
	courses TEXT,
	source TEXT NOT NULL DEFAULT '',
	scraped_at TIMESTAMP NOT NULL,
	UNIQUE (name, address)
);`

const progressSchema = `
CREATE TABLE IF NOT EXISTS scrape_progress (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	city_url TEXT NOT NULL UNIQUE,
	city_index INTEGER NOT NULL,
	total_cities INTEGER NOT NULL,
	schools_found INTEGER NOT NULL DEFAULT 0,
	completed_at TIMESTAMP NOT NULL
);`

// SchoolStore implements store.SchoolRepository on SQLite.
type SchoolStore struct {
	db *sql.DB
}

// NewSchoolStore wraps an open handle; use Open to create one.
func NewSchoolStore(db *sql.DB) (*SchoolStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &SchoolStore{db: db}, nil
}

// Init creates the driving_schools table when it does not exist yet.
func (s *SchoolStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schoolSchema); err != nil {
		return fmt.Errorf("create driving_schools table: %w", err)
	}
	return nil
}

// Upsert inserts the school or merges it into the existing row with the
// same (name, address) key. Empty strings and NULL numerics count as
// absent: they never clobber a stored value.
func (s *SchoolStore) Upsert(ctx context.Context, rec school.School) error {
	if rec.Name == "" {
		return errors.New("school name is required")
	}
	var coursesJSON any
	if len(rec.Courses) > 0 {
		data, err := json.Marshal(rec.Courses)
		if err != nil {
			return fmt.Errorf("marshal courses: %w", err)
		}
		coursesJSON = string(data)
	}

	query := `
INSERT INTO driving_schools (
	name, address, url, phone, email, website, rating, review_count,
	success_rate, price_range, courses, source, scraped_at
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT (name, address) DO UPDATE SET
	url = COALESCE(NULLIF(EXCLUDED.url, ''), url),
	phone = COALESCE(NULLIF(EXCLUDED.phone, ''), phone),
	email = COALESCE(NULLIF(EXCLUDED.email, ''), email),
	website = COALESCE(NULLIF(EXCLUDED.website, ''), website),
	rating = COALESCE(EXCLUDED.rating, rating),
	review_count = COALESCE(EXCLUDED.review_count, review_count),
	success_rate = COALESCE(EXCLUDED.success_rate, success_rate),
	price_range = COALESCE(NULLIF(EXCLUDED.price_range, ''), price_range),
	courses = COALESCE(EXCLUDED.courses, courses),
	source = COALESCE(NULLIF(EXCLUDED.source, ''), source),
	scraped_at = EXCLUDED.scraped_at;`

	_, err := s.db.ExecContext(ctx, query,
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
	)
	if err != nil {
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

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list schools: %w", err)
	}
	defer rows.Close()

	var schools []school.School
	for rows.Next() {
		var (
			rec         school.School
			coursesJSON sql.NullString
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
		if coursesJSON.Valid && coursesJSON.String != "" {
			if err := json.Unmarshal([]byte(coursesJSON.String), &rec.Courses); err != nil {
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

// ProgressStore implements store.ProgressRepository on SQLite.
type ProgressStore struct {
	db *sql.DB
}

// NewProgressStore wraps an open handle; use Open to create one.
func NewProgressStore(db *sql.DB) (*ProgressStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &ProgressStore{db: db}, nil
}

// Init creates the scrape_progress table when it does not exist yet.
func (s *ProgressStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, progressSchema); err != nil {
		return fmt.Errorf("create scrape_progress table: %w", err)
	}
	return nil
}

// Exists reports whether the unit already has a completion record.
func (s *ProgressStore) Exists(ctx context.Context, unitURL string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM scrape_progress WHERE city_url = ?);`,
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
VALUES (?,?,?,?,?)
ON CONFLICT (city_url) DO UPDATE SET
	city_index = EXCLUDED.city_index,
	total_cities = EXCLUDED.total_cities,
	schools_found = EXCLUDED.schools_found,
	completed_at = EXCLUDED.completed_at;`

	_, err := s.db.ExecContext(ctx, query,
		rec.UnitURL, rec.UnitIndex, rec.TotalUnits, rec.SchoolsFound, rec.CompletedAt)
	if err != nil {
		return fmt.Errorf("upsert progress for %s: %w", rec.UnitURL, err)
	}
	return nil
}

// ListCompleted returns the URLs of every completed unit in discovery order.
func (s *ProgressStore) ListCompleted(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
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
