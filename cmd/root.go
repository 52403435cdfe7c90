// Package cmd defines the CLI commands for the scraper executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scraper",
		Short: "Resumable scraper for Dutch driving-school directories",
		Long: `scraper collects driving-school listings from rijlessen.nl into a
local or shared database. Runs are resumable: completed city pages are
recorded and skipped on the next invocation, so an interrupted crawl
continues where it left off.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults and SCRAPER_* env vars apply without one")
	cmd.AddCommand(newCrawlCmd(), newDedupeCmd())
	return cmd
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the command context,
// which the crawl treats as a graceful stop.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
