package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lewandolfski/driving-school-scraper/internal/app"
	"github.com/lewandolfski/driving-school-scraper/internal/dedupe"
)

func newDedupeCmd() *cobra.Command {
	var threshold float64

	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Merge duplicate school records already in the database",
		Long: `Loads every stored school, groups records whose similarity score
meets the threshold and merges each group into its most complete
member, preferring present fields over absent ones. Merged records are
written back through the normal upsert path.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := app.New(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			cutoff := a.Config.Dedupe.Threshold
			if threshold > 0 {
				cutoff = threshold
			}

			schools, err := a.Schools.ListAll(ctx)
			if err != nil {
				return fmt.Errorf("load schools: %w", err)
			}
			if len(schools) < 2 {
				a.Logger.Info("nothing to deduplicate", zap.Int("schools", len(schools)))
				return nil
			}

			groups := dedupe.FindDuplicates(schools, cutoff)
			if len(groups) == 0 {
				a.Logger.Info("no duplicate groups found",
					zap.Int("schools", len(schools)),
					zap.Float64("threshold", cutoff))
				return nil
			}

			// Merge puts one merged record per group at the front.
			merged := dedupe.Merge(schools, groups)[:len(groups)]
			for _, s := range merged {
				if err := a.Schools.Upsert(ctx, s); err != nil {
					return fmt.Errorf("write merged record %q: %w", s.Name, err)
				}
			}

			a.Logger.Info("deduplication finished",
				zap.Int("schools", len(schools)),
				zap.Int("groups_merged", len(groups)),
				zap.Float64("threshold", cutoff))
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity cutoff override in (0, 1]; 0 uses the configured value")
	return cmd
}
