package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lewandolfski/driving-school-scraper/internal/api"
	"github.com/lewandolfski/driving-school-scraper/internal/app"
	"github.com/lewandolfski/driving-school-scraper/internal/crawl"
	collyfetcher "github.com/lewandolfski/driving-school-scraper/internal/fetcher/colly"
	"github.com/lewandolfski/driving-school-scraper/internal/scraper/rijlessen"
)

func newCrawlCmd() *cobra.Command {
	var maxUnits int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run a resumable crawl of the configured directory site",
		Long: `Discovers city pages from the directory root, then walks each page
that has not been completed in an earlier run: extracting schools,
enriching them from their detail pages and storing the results. An
interrupt finishes the unit in flight, persists it and exits; the next
run resumes with the remaining units.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := app.New(ctx, cfgFile)
			if err != nil {
				return err
			}
			// Close must flush telemetry even after a cancellation signal.
			defer a.Close(context.WithoutCancel(ctx))

			site, err := rijlessen.New(rijlessen.Config{
				BaseURL:   a.Config.Site.BaseURL,
				UserAgent: a.Config.Site.UserAgent,
			})
			if err != nil {
				return err
			}
			fetcher := collyfetcher.New(collyfetcher.Config{
				Timeout: a.Config.FetchTimeout(),
			})

			runnerCfg := crawl.Config{
				UnitDelay:       a.Config.Crawler.UnitDelay,
				DetailDelay:     a.Config.Crawler.DetailDelay,
				TelemetryEvery:  a.Config.Crawler.TelemetryEvery,
				MaxUnits:        a.Config.Crawler.MaxUnits,
				DedupeThreshold: a.Config.Dedupe.Threshold,
			}
			if maxUnits > 0 {
				runnerCfg.MaxUnits = maxUnits
			}
			runner, err := crawl.NewRunner(runnerCfg, fetcher, site, a.Schools, a.Progress, a.Hub, a.Logger)
			if err != nil {
				return err
			}

			// Ops endpoints run for the lifetime of the crawl.
			ops := api.NewServer(a.Logger, a.Registry, func() bool { return true })
			go func() {
				addr := fmt.Sprintf(":%d", a.Config.Server.Port)
				if err := ops.ListenAndServe(ctx, addr); err != nil {
					a.Logger.Warn("ops server stopped", zap.Error(err))
				}
			}()

			sum, err := runner.Run(ctx)
			if err != nil {
				return fmt.Errorf("crawl: %w", err)
			}
			a.Logger.Info("run summary",
				zap.String("run_id", sum.RunID.String()),
				zap.Int("total_units", sum.TotalUnits),
				zap.Int("processed", sum.Processed),
				zap.Int("skipped", sum.Skipped),
				zap.Int("failed", sum.Failed),
				zap.Int("schools", sum.Schools),
				zap.Int("duplicate_groups", sum.DuplicateGroups),
				zap.Bool("stopped", sum.Stopped),
				zap.Duration("elapsed", sum.Elapsed))
			return nil
		},
	}
	cmd.Flags().IntVar(&maxUnits, "max-units", 0, "cap the number of city pages processed this run (0 = all)")
	return cmd
}
