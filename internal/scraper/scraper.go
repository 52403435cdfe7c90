// Package scraper defines the capability interfaces that connect a target
// site to the crawl runner. The runner depends only on these interfaces,
// never on concrete site logic.
package scraper

import (
	"context"
	"net/http"
	"time"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
)

// FetchRequest captures everything needed to fetch one page.
type FetchRequest struct {
	URL string
	// Headers is the site's fixed header profile; sites vary in the
	// headers and locale they require.
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Fetcher issues a single timed HTTP GET. One attempt, no retry: a failure
// is reported to the caller, which decides whether to skip or abort.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Site is the per-target capability set. Implementations hold the
// site-specific extraction rules; they never touch crawl state.
type Site interface {
	// Name labels the site in logs and stored records.
	Name() string
	// RootURL is the page from which crawl units are discovered.
	RootURL() string
	// Headers returns the fixed request header profile for this site.
	Headers() http.Header
	// DiscoverUnits extracts the unique set of crawl-unit URLs from the
	// root listing page. Duplicate links collapse to one unit.
	DiscoverUnits(body []byte) ([]school.CrawlUnit, error)
	// ExtractListing scans a unit page for school entries. Entries with
	// an empty or implausibly short name are discarded, not yielded.
	ExtractListing(body []byte, unit school.CrawlUnit) ([]school.School, error)
	// IsDetailURL reports whether the URL follows the site's detail-page
	// convention and is worth a second fetch.
	IsDetailURL(url string) bool
	// ExtractDetail enriches one school in place from its detail page.
	// Detail-derived values only overwrite listing-derived ones when a
	// match is found and passes its own bounds check.
	ExtractDetail(body []byte, s *school.School)
}
