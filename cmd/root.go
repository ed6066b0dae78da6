// Package cmd defines and implements the CLI commands for the snapcrawl
// executable.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jordanhale/snapcrawl/internal/checkpoint"
)

// Exit codes. A storage-capacity failure gets its own code so the managed
// runtime can tell "the store rejected the batch" apart from ordinary
// failures without parsing logs.
const (
	exitFailure         = 1
	exitStorageCapacity = 3
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapcrawl",
		Short: "A checkpointed, bounded-concurrency web crawler.",
		Long: `snapcrawl walks a growing URL frontier with a fixed-size worker pool,
extracts one structured record per page, and persists results in numbered
batches to a durable checkpoint store. A persisted progress counter lets an
interrupted crawl resume where it left off.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./snapcrawl.yaml)")
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, checkpoint.ErrValueTooLarge) {
			os.Exit(exitStorageCapacity)
		}
		os.Exit(exitFailure)
	}
}
