// Package school defines core types shared across subsystems.
package school

import (
	"strings"
	"time"
)

// CourseFact is one tagged fact attached to a school, such as the
// slagingspercentage advertised on its listing.
type CourseFact struct {
	Type        string `json:"type"`
	Value       int    `json:"value"`
	Description string `json:"description"`
}

// School is one extracted driving-school record. Name is the only required
// field; everything else is enrichment and may be absent. Pointer fields
// distinguish absent from zero.
type School struct {
	Name        string       `json:"name"`
	URL         string       `json:"url,omitempty"`
	Address     string       `json:"address,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	Email       string       `json:"email,omitempty"`
	Website     string       `json:"website,omitempty"`
	Rating      *float64     `json:"rating,omitempty"`
	ReviewCount *int         `json:"review_count,omitempty"`
	SuccessRate *int         `json:"success_rate,omitempty"`
	PriceRange  string       `json:"price_range,omitempty"`
	Courses     []CourseFact `json:"courses,omitempty"`
	Source      string       `json:"source,omitempty"`
	ScrapedAt   time.Time    `json:"scraped_at"`
}

// Key is the natural key used for storage upserts and duplicate seeding.
// Two schools with the same key are the same real-world record.
type Key struct {
	Name    string
	Address string
}

// NaturalKey lowercases the identity fields into a Key. Callers are expected
// to have run the name and address through the validate package first.
func (s School) NaturalKey() Key {
	return Key{
		Name:    strings.ToLower(strings.TrimSpace(s.Name)),
		Address: strings.ToLower(strings.TrimSpace(s.Address)),
	}
}

// Completeness counts the non-absent enrichment fields. The deduplicator
// uses it to pick the base record of a duplicate group.
func (s School) Completeness() int {
	count := 0
	for _, present := range []bool{
		s.Name != "",
		s.Address != "",
		s.Phone != "",
		s.Email != "",
		s.Website != "",
		s.Rating != nil,
		s.ReviewCount != nil,
	} {
		if present {
			count++
		}
	}
	return count
}

// CrawlUnit is one addressable sub-page of the target site, discovered once
// per run from the root listing and immutable afterwards.
type CrawlUnit struct {
	// URL is the canonical city-listing URL and the unit's identity.
	URL string
	// Index is the position in discovery order, starting at 1.
	Index int
}
