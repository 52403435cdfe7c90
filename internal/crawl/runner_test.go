package crawl

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lewandolfski/driving-school-scraper/internal/school"
	"github.com/lewandolfski/driving-school-scraper/internal/scraper"
	"github.com/lewandolfski/driving-school-scraper/internal/store"
)

const (
	rootURL  = "https://example.test/rijscholen"
	unit1URL = "https://example.test/rijscholen/amsterdam"
	unit2URL = "https://example.test/rijscholen/meppel"
	unit3URL = "https://example.test/rijscholen/utrecht"
	unit4URL = "https://example.test/rijscholen/breda"
)

type fakeFetcher struct {
	mu      sync.Mutex
	fail    map[string]error
	fetched []string
	onFetch func(url string)
}

func (f *fakeFetcher) Fetch(_ context.Context, req scraper.FetchRequest) (scraper.FetchResponse, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, req.URL)
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(req.URL)
	}
	if err, ok := f.fail[req.URL]; ok {
		return scraper.FetchResponse{}, err
	}
	return scraper.FetchResponse{
		URL:        req.URL,
		StatusCode: http.StatusOK,
		Body:       []byte("<html></html>"),
		Duration:   time.Millisecond,
	}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

// fakeSite serves canned units and listings keyed by URL, so the runner's
// orchestration is tested without any HTML in the way.
type fakeSite struct {
	units    []school.CrawlUnit
	listings map[string][]school.School
}

func (s *fakeSite) Name() string         { return "fake.test" }
func (s *fakeSite) RootURL() string      { return rootURL }
func (s *fakeSite) Headers() http.Header { return http.Header{} }

func (s *fakeSite) DiscoverUnits([]byte) ([]school.CrawlUnit, error) {
	return append([]school.CrawlUnit(nil), s.units...), nil
}

func (s *fakeSite) ExtractListing(_ []byte, unit school.CrawlUnit) ([]school.School, error) {
	return append([]school.School(nil), s.listings[unit.URL]...), nil
}

func (s *fakeSite) IsDetailURL(url string) bool {
	return strings.Contains(url, "/rijschool-")
}

func (s *fakeSite) ExtractDetail(_ []byte, entry *school.School) {
	entry.Phone = "0612345678"
}

type memSchoolRepo struct {
	mu      sync.Mutex
	upserts []school.School
}

func (r *memSchoolRepo) Upsert(_ context.Context, s school.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upserts = append(r.upserts, s)
	return nil
}

func (r *memSchoolRepo) ListAll(context.Context) ([]school.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]school.School(nil), r.upserts...), nil
}

type memProgressRepo struct {
	mu        sync.Mutex
	completed []string
	records   []store.ProgressRecord
}

func (r *memProgressRepo) Exists(_ context.Context, unitURL string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.completed {
		if u == unitURL {
			return true, nil
		}
	}
	return false, nil
}

func (r *memProgressRepo) Upsert(_ context.Context, rec store.ProgressRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memProgressRepo) ListCompleted(context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.completed...), nil
}

func (r *memProgressRepo) recordedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	urls := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		urls = append(urls, rec.UnitURL)
	}
	return urls
}

func fastConfig() Config {
	return Config{UnitDelay: time.Millisecond, DetailDelay: time.Millisecond, TelemetryEvery: 100}
}

func newTestRunner(t *testing.T, cfg Config, f *fakeFetcher, s *fakeSite,
	schools *memSchoolRepo, prog *memProgressRepo) *Runner {
	t.Helper()
	r, err := NewRunner(cfg, f, s, schools, prog, nil, nil)
	require.NoError(t, err)
	return r
}

func fourUnitSite() *fakeSite {
	return &fakeSite{
		units: []school.CrawlUnit{
			{URL: unit1URL, Index: 1},
			{URL: unit2URL, Index: 2},
			{URL: unit3URL, Index: 3},
			{URL: unit4URL, Index: 4},
		},
		listings: map[string][]school.School{
			unit1URL: {{Name: "Rijschool Eerste", Address: "Amsterdam"}},
			unit2URL: {{Name: "Rijschool Tweede", Address: "Meppel"}},
			unit3URL: {{Name: "Rijschool Derde", Address: "Utrecht"}},
			unit4URL: {{Name: "Rijschool Vierde", Address: "Breda"}},
		},
	}
}

func TestRunResumesSkippingCompletedUnits(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	site := fourUnitSite()
	schools := &memSchoolRepo{}
	prog := &memProgressRepo{completed: []string{unit1URL, unit3URL}}

	r := newTestRunner(t, fastConfig(), fetcher, site, schools, prog)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, sum.TotalUnits)
	require.Equal(t, 2, sum.Processed)
	require.Equal(t, 2, sum.Skipped)
	require.Zero(t, sum.Failed)
	require.False(t, sum.Stopped)

	fetched := fetcher.urls()
	require.Contains(t, fetched, unit2URL)
	require.Contains(t, fetched, unit4URL)
	require.NotContains(t, fetched, unit1URL)
	require.NotContains(t, fetched, unit3URL)
	require.ElementsMatch(t, []string{unit2URL, unit4URL}, prog.recordedURLs())
}

func TestRunFetchFailureRecordsNoProgress(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fail: map[string]error{
		unit2URL: &scraper.FetchError{Kind: scraper.FailureStatus, URL: unit2URL, StatusCode: 500},
	}}
	site := fourUnitSite()
	schools := &memSchoolRepo{}
	prog := &memProgressRepo{}

	r := newTestRunner(t, fastConfig(), fetcher, site, schools, prog)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, sum.Processed)
	require.Equal(t, 1, sum.Failed)
	require.NotContains(t, prog.recordedURLs(), unit2URL,
		"a failed unit must stay due for the next run")
	require.Len(t, prog.recordedURLs(), 3)
}

func TestRunZeroEntityUnitStillRecordsProgress(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	site := fourUnitSite()
	site.listings[unit3URL] = nil
	schools := &memSchoolRepo{}
	prog := &memProgressRepo{}

	r := newTestRunner(t, fastConfig(), fetcher, site, schools, prog)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 4, sum.Processed)
	require.Contains(t, prog.recordedURLs(), unit3URL)
	for _, rec := range prog.records {
		if rec.UnitURL == unit3URL {
			require.Zero(t, rec.SchoolsFound)
		}
	}
}

func TestRunCancellationPersistsCurrentUnit(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fetcher := &fakeFetcher{}
	fetcher.onFetch = func(url string) {
		if url == unit2URL {
			cancel()
		}
	}
	site := fourUnitSite()
	// Unit 2's school points at a detail page, which the cancellation must
	// prevent from being fetched.
	site.listings[unit2URL] = []school.School{{
		Name:    "Rijschool Tweede",
		Address: "Meppel",
		URL:     "https://example.test/rijscholen/meppel/rijschool-tweede",
	}}
	schools := &memSchoolRepo{}
	prog := &memProgressRepo{}

	r := newTestRunner(t, fastConfig(), fetcher, site, schools, prog)
	sum, err := r.Run(ctx)
	require.NoError(t, err, "cancellation is a graceful stop, not an error")

	require.True(t, sum.Stopped)
	require.Equal(t, 2, sum.Processed)
	require.ElementsMatch(t, []string{unit1URL, unit2URL}, prog.recordedURLs(),
		"the unit in flight is persisted before stopping")
	require.NotContains(t, fetcher.urls(), unit3URL)
	require.NotContains(t, fetcher.urls(), "https://example.test/rijscholen/meppel/rijschool-tweede")
}

func TestRunRootFetchFailureIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{fail: map[string]error{
		rootURL: &scraper.FetchError{Kind: scraper.FailureNetwork, URL: rootURL, Err: errors.New("refused")},
	}}
	site := fourUnitSite()

	r := newTestRunner(t, fastConfig(), fetcher, site, &memSchoolRepo{}, &memProgressRepo{})
	_, err := r.Run(context.Background())
	require.Error(t, err)
}

func TestRunEmptyDiscoveryIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	site := &fakeSite{}

	r := newTestRunner(t, fastConfig(), fetcher, site, &memSchoolRepo{}, &memProgressRepo{})
	_, err := r.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "no crawl units")
}

func TestRunMaxUnitsCapsTheRun(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	site := fourUnitSite()
	cfg := fastConfig()
	cfg.MaxUnits = 2
	prog := &memProgressRepo{}

	r := newTestRunner(t, cfg, fetcher, site, &memSchoolRepo{}, prog)
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.TotalUnits)
	require.Equal(t, 2, sum.Processed)
	require.ElementsMatch(t, []string{unit1URL, unit2URL}, prog.recordedURLs())
}

func TestRunMergesDuplicatesAcrossUnits(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	site := fourUnitSite()
	// The same school appears in two cities' listings under prefixed and
	// bare names; validation strips the prefix and the merge pass unifies
	// them.
	site.listings = map[string][]school.School{
		unit1URL: {{Name: "Rijschool Jansen", Address: "Meppel", Email: "info@jansen.nl"}},
		unit2URL: {{Name: "Jansen", Address: "Meppel", Website: "https://jansen.nl"}},
	}
	site.units = site.units[:2]
	schools := &memSchoolRepo{}

	r := newTestRunner(t, fastConfig(), fetcher, site, schools, &memProgressRepo{})
	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, sum.DuplicateGroups)
	// Two per-unit upserts plus one merged representative.
	require.Len(t, schools.upserts, 3)
	merged := schools.upserts[2]
	require.Equal(t, "Jansen", merged.Name)
	require.Equal(t, "info@jansen.nl", merged.Email)
	require.Equal(t, "https://jansen.nl", merged.Website)
}
