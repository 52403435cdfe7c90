// Package store declares the persistence interfaces for school records and
// per-unit crawl progress. Implementations live in internal/storage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ProgressRecord marks one crawl unit as fully processed. A unit without a
// record is due for processing; partially processed units never get one.
type ProgressRecord struct {
	// UnitURL identifies the unit; one record per URL.
	UnitURL string
	// UnitIndex is the unit's position in discovery order, starting at 1.
	UnitIndex int
	// TotalUnits is the discovery count of the run that completed the unit.
	TotalUnits int
	// SchoolsFound counts entities extracted from the unit, zero included.
	SchoolsFound int
	// CompletedAt is when the unit finished processing.
	CompletedAt time.Time
}

// SchoolRepository persists extracted school records keyed by their natural
// key (normalized name plus address).
type SchoolRepository interface {
	// Upsert inserts the school or, when the natural key already exists,
	// merges it into the stored row. Non-absent incoming enrichment fields
	// win; absent ones keep the stored values.
	Upsert(ctx context.Context, s school.School) error
	// ListAll returns every stored school, ordered by name.
	ListAll(ctx context.Context) ([]school.School, error)
}

// ProgressRepository persists per-unit completion marks for resumption.
type ProgressRepository interface {
	// Exists reports whether the unit already has a completion record.
	Exists(ctx context.Context, unitURL string) (bool, error)
	// Upsert records the unit as completed, replacing any earlier record
	// for the same URL.
	Upsert(ctx context.Context, rec ProgressRecord) error
	// ListCompleted returns the URLs of every completed unit.
	ListCompleted(ctx context.Context) ([]string, error)
}
