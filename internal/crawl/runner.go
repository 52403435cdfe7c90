// Package crawl orchestrates a resumable scrape run: unit discovery,
// per-unit extraction and enrichment, progress bookkeeping and pacing.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/lewandolfski/driving-school-scraper/internal/dedupe"
	"github.com/lewandolfski/driving-school-scraper/internal/progress"
	"github.com/lewandolfski/driving-school-scraper/internal/school"
	"github.com/lewandolfski/driving-school-scraper/internal/scraper"
	"github.com/lewandolfski/driving-school-scraper/internal/store"
	"github.com/lewandolfski/driving-school-scraper/internal/validate"
)

// ErrNoUnits aborts a run whose root listing yields nothing to crawl.
var ErrNoUnits = errors.New("no crawl units discovered on root listing")

// Defaults for request pacing and telemetry cadence.
const (
	DefaultUnitDelay      = time.Second
	DefaultDetailDelay    = 500 * time.Millisecond
	DefaultTelemetryEvery = 10
)

// Config tunes one crawl run.
type Config struct {
	// UnitDelay paces requests for unit (city) pages.
	UnitDelay time.Duration
	// DetailDelay paces requests for per-school detail pages.
	DetailDelay time.Duration
	// TelemetryEvery emits a heartbeat with throughput and ETA after this
	// many processed units.
	TelemetryEvery int
	// MaxUnits caps how many units are processed this run; 0 means all.
	MaxUnits int
	// DedupeThreshold is the similarity cutoff for the end-of-run merge.
	// Zero selects the package default.
	DedupeThreshold float64
}

// Summary reports what a run accomplished.
type Summary struct {
	RunID      uuid.UUID
	TotalUnits int
	Processed  int
	Skipped    int
	Failed     int
	Schools    int
	// DuplicateGroups counts the merged groups of the end-of-run pass.
	DuplicateGroups int
	// Stopped is true when the run ended on a cancellation signal rather
	// than exhausting its units.
	Stopped bool
	Elapsed time.Duration
}

// Runner drives a crawl against one site. It owns no site-specific logic
// and no storage details; those arrive through the interfaces.
type Runner struct {
	cfg       Config
	fetcher   scraper.Fetcher
	site      scraper.Site
	schools   store.SchoolRepository
	progress  store.ProgressRepository
	events    progress.Emitter
	validator *validate.Validator
	logger    *zap.Logger

	unitLimiter   *rate.Limiter
	detailLimiter *rate.Limiter
	now           func() time.Time
}

// NewRunner wires a Runner. Fetcher, site and both repositories are
// required; emitter, validator and logger fall back to no-ops.
func NewRunner(
	cfg Config,
	fetcher scraper.Fetcher,
	site scraper.Site,
	schools store.SchoolRepository,
	progressRepo store.ProgressRepository,
	events progress.Emitter,
	logger *zap.Logger,
) (*Runner, error) {
	if fetcher == nil || site == nil {
		return nil, errors.New("fetcher and site are required")
	}
	if schools == nil || progressRepo == nil {
		return nil, errors.New("school and progress repositories are required")
	}
	if cfg.UnitDelay <= 0 {
		cfg.UnitDelay = DefaultUnitDelay
	}
	if cfg.DetailDelay <= 0 {
		cfg.DetailDelay = DefaultDetailDelay
	}
	if cfg.TelemetryEvery <= 0 {
		cfg.TelemetryEvery = DefaultTelemetryEvery
	}
	if cfg.DedupeThreshold <= 0 {
		cfg.DedupeThreshold = dedupe.DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("runner")
	if events == nil {
		events = nopEmitter{}
	}
	return &Runner{
		cfg:           cfg,
		fetcher:       fetcher,
		site:          site,
		schools:       schools,
		progress:      progressRepo,
		events:        events,
		validator:     validate.New(logger),
		logger:        logger,
		unitLimiter:   rate.NewLimiter(rate.Every(cfg.UnitDelay), 1),
		detailLimiter: rate.NewLimiter(rate.Every(cfg.DetailDelay), 1),
		now:           time.Now,
	}, nil
}

// Run executes the crawl until the units are exhausted or ctx is canceled.
// Cancellation is graceful and not an error: the unit in flight is finished
// and persisted before Run returns. Root fetch failures and empty discovery
// are fatal.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := r.now()
	runID := uuid.New()
	sum := Summary{RunID: runID}

	r.emit(runID, progress.Event{Stage: progress.StageRunStart, Note: r.site.Name()})

	units, err := r.discover(ctx, runID)
	if err != nil {
		r.emitError(runID, start, err)
		return sum, err
	}
	if r.cfg.MaxUnits > 0 && len(units) > r.cfg.MaxUnits {
		units = units[:r.cfg.MaxUnits]
	}
	sum.TotalUnits = len(units)

	completed, err := r.completedSet(ctx)
	if err != nil {
		r.emitError(runID, start, err)
		return sum, err
	}
	r.logger.Info("starting crawl",
		zap.String("run_id", runID.String()),
		zap.Int("units", len(units)),
		zap.Int("already_completed", len(completed)))

	var collected []school.School
	for _, unit := range units {
		if ctx.Err() != nil {
			sum.Stopped = true
			break
		}
		if _, done := completed[unit.URL]; done {
			sum.Skipped++
			continue
		}
		if err := r.unitLimiter.Wait(ctx); err != nil {
			sum.Stopped = true
			break
		}

		extracted, stopped, ok := r.processUnit(ctx, runID, unit, len(units))
		if stopped {
			sum.Stopped = true
		}
		if !ok {
			sum.Failed++
			if stopped {
				break
			}
			continue
		}
		collected = append(collected, extracted...)
		sum.Processed++
		sum.Schools += len(extracted)
		if sum.Processed%r.cfg.TelemetryEvery == 0 {
			r.heartbeat(runID, start, sum)
		}
		if stopped {
			break
		}
	}

	sum.DuplicateGroups = r.mergeDuplicates(ctx, runID, collected)
	sum.Elapsed = r.now().Sub(start)

	note := "completed"
	if sum.Stopped {
		note = "stopped early, resume to continue"
	}
	r.emit(runID, progress.Event{
		Stage:      progress.StageRunDone,
		TotalUnits: sum.TotalUnits,
		Schools:    sum.Schools,
		Dur:        sum.Elapsed,
		Note:       note,
	})
	r.logger.Info("crawl finished",
		zap.String("run_id", runID.String()),
		zap.Int("processed", sum.Processed),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
		zap.Int("schools", sum.Schools),
		zap.Int("duplicate_groups", sum.DuplicateGroups),
		zap.Bool("stopped", sum.Stopped),
		zap.Duration("elapsed", sum.Elapsed))
	return sum, nil
}

// discover fetches the root page and extracts the unit list. Any failure
// here leaves nothing to crawl, so it aborts the run.
func (r *Runner) discover(ctx context.Context, runID uuid.UUID) ([]school.CrawlUnit, error) {
	resp, err := r.fetch(ctx, runID, r.site.RootURL())
	if err != nil {
		return nil, fmt.Errorf("fetch root listing: %w", err)
	}
	units, err := r.site.DiscoverUnits(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	if len(units) == 0 {
		return nil, ErrNoUnits
	}
	return units, nil
}

func (r *Runner) completedSet(ctx context.Context) (map[string]struct{}, error) {
	urls, err := r.progress.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed units: %w", err)
	}
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set, nil
}

// processUnit runs one unit end to end. It reports the validated schools,
// whether a cancellation was observed, and whether the unit completed (a
// failed unit records no progress so a later run retries it).
func (r *Runner) processUnit(
	ctx context.Context,
	runID uuid.UUID,
	unit school.CrawlUnit,
	totalUnits int,
) ([]school.School, bool, bool) {
	unitStart := r.now()

	resp, err := r.fetch(ctx, runID, unit.URL)
	if err != nil {
		r.logger.Warn("unit fetch failed, will retry next run",
			zap.String("url", unit.URL), zap.Error(err))
		return nil, ctx.Err() != nil, false
	}
	extracted, err := r.site.ExtractListing(resp.Body, unit)
	if err != nil {
		r.logger.Warn("unit parse failed, will retry next run",
			zap.String("url", unit.URL), zap.Error(err))
		return nil, false, false
	}

	stopped := r.enrich(ctx, runID, extracted)
	valid := r.validate(extracted)

	// A cancellation mid-unit still persists what was gathered; the unit
	// only counts as done when every write lands.
	persistCtx := ctx
	if stopped || ctx.Err() != nil {
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := r.persistUnit(persistCtx, unit, totalUnits, valid); err != nil {
		r.logger.Warn("unit persist failed, will retry next run",
			zap.String("url", unit.URL), zap.Error(err))
		return nil, stopped, false
	}

	r.emit(runID, progress.Event{
		Stage:      progress.StageUnitDone,
		Unit:       unit.Index,
		TotalUnits: totalUnits,
		URL:        unit.URL,
		Schools:    len(valid),
		Dur:        r.now().Sub(unitStart),
	})
	return valid, stopped, true
}

// enrich fetches detail pages for entries that have one. Failures keep the
// listing-derived data; a cancellation stops further detail fetches and is
// reported to the caller.
func (r *Runner) enrich(ctx context.Context, runID uuid.UUID, entries []school.School) bool {
	for i := range entries {
		if !r.site.IsDetailURL(entries[i].URL) {
			continue
		}
		if ctx.Err() != nil {
			return true
		}
		if err := r.detailLimiter.Wait(ctx); err != nil {
			return true
		}
		resp, err := r.fetch(ctx, runID, entries[i].URL)
		if err != nil {
			r.logger.Debug("detail fetch failed, keeping listing data",
				zap.String("url", entries[i].URL), zap.Error(err))
			if ctx.Err() != nil {
				return true
			}
			continue
		}
		r.site.ExtractDetail(resp.Body, &entries[i])
	}
	return false
}

// validate applies the field validators and drops records with no usable
// name.
func (r *Runner) validate(entries []school.School) []school.School {
	valid := entries[:0]
	for i := range entries {
		if err := r.validator.Apply(&entries[i]); err != nil {
			r.logger.Debug("dropping invalid record", zap.Error(err))
			continue
		}
		valid = append(valid, entries[i])
	}
	return valid
}

// persistUnit writes the unit's schools and then its completion mark. The
// mark goes last: a crash in between re-processes the unit, and the
// natural-key upsert makes that harmless.
func (r *Runner) persistUnit(
	ctx context.Context,
	unit school.CrawlUnit,
	totalUnits int,
	entries []school.School,
) error {
	for _, s := range entries {
		if err := r.schools.Upsert(ctx, s); err != nil {
			return fmt.Errorf("upsert school %q: %w", s.Name, err)
		}
	}
	rec := store.ProgressRecord{
		UnitURL:      unit.URL,
		UnitIndex:    unit.Index,
		TotalUnits:   totalUnits,
		SchoolsFound: len(entries),
		CompletedAt:  r.now().UTC(),
	}
	if err := r.progress.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	return nil
}

// mergeDuplicates runs the similarity pass over everything this run
// collected and re-upserts the merged representatives. Returns the number
// of merged groups.
func (r *Runner) mergeDuplicates(ctx context.Context, runID uuid.UUID, collected []school.School) int {
	if len(collected) < 2 {
		return 0
	}
	groups := dedupe.FindDuplicates(collected, r.cfg.DedupeThreshold)
	if len(groups) == 0 {
		return 0
	}
	// Merge places one merged record per group at the front of its result.
	merged := dedupe.Merge(collected, groups)[:len(groups)]

	writeCtx := context.WithoutCancel(ctx)
	for _, s := range merged {
		if err := r.schools.Upsert(writeCtx, s); err != nil {
			r.logger.Warn("merged record upsert failed",
				zap.String("name", s.Name), zap.Error(err))
		}
	}
	r.logger.Info("merged duplicate groups",
		zap.String("run_id", runID.String()),
		zap.Int("groups", len(groups)))
	return len(groups)
}

// fetch performs one paced GET and emits the fetch telemetry.
func (r *Runner) fetch(ctx context.Context, runID uuid.UUID, url string) (scraper.FetchResponse, error) {
	resp, err := r.fetcher.Fetch(ctx, scraper.FetchRequest{URL: url, Headers: r.site.Headers()})
	statusClass := progress.StatusOther
	dur := resp.Duration
	if err == nil {
		statusClass = progress.ClassifyStatus(resp.StatusCode)
	} else if fe, ok := scraper.AsFetchError(err); ok && fe.StatusCode > 0 {
		statusClass = progress.ClassifyStatus(fe.StatusCode)
	}
	r.emit(runID, progress.Event{
		Stage:       progress.StageFetchDone,
		URL:         url,
		StatusClass: statusClass,
		Bytes:       len(resp.Body),
		Dur:         dur,
	})
	return resp, err
}

func (r *Runner) heartbeat(runID uuid.UUID, start time.Time, sum Summary) {
	elapsed := r.now().Sub(start)
	remaining := sum.TotalUnits - sum.Processed - sum.Skipped
	perUnit := elapsed / time.Duration(sum.Processed)
	eta := perUnit * time.Duration(remaining)
	r.emit(runID, progress.Event{
		Stage:      progress.StageRunHeartbeat,
		Unit:       sum.Processed,
		TotalUnits: sum.TotalUnits,
		Schools:    sum.Schools,
		Dur:        elapsed,
		Note:       fmt.Sprintf("eta %s at %s/unit", eta.Round(time.Second), perUnit.Round(time.Millisecond)),
	})
	r.logger.Info("crawl progress",
		zap.Int("processed", sum.Processed),
		zap.Int("total", sum.TotalUnits),
		zap.Int("schools", sum.Schools),
		zap.Duration("eta", eta))
}

func (r *Runner) emit(runID uuid.UUID, evt progress.Event) {
	evt.RunID = progress.UUIDToBytes(runID)
	evt.TS = r.now().UTC()
	r.events.Emit(evt)
}

func (r *Runner) emitError(runID uuid.UUID, start time.Time, err error) {
	r.emit(runID, progress.Event{
		Stage: progress.StageRunError,
		Dur:   r.now().Sub(start),
		Note:  err.Error(),
	})
}

type nopEmitter struct{}

func (nopEmitter) Emit(progress.Event) {}
