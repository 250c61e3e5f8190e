package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/wildfire-exposure/internal/fetcher"
	"github.com/sells-group/wildfire-exposure/internal/resilience"
)

var fetchConcurrency int

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the input datasets listed under fetch.datasets",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		results, err := fetcher.FetchAll(ctx, newFetcher(), cfg.Fetch.Datasets, cfg.Paths.DataDir, fetchConcurrency)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		for _, r := range results {
			state := "downloaded"
			if r.Skipped {
				state = "present"
			}
			if _, err := fmt.Fprintf(w, "%-12s %-10s %s\n", r.Name, state, r.Primary); err != nil {
				return err
			}
		}
		return nil
	},
}

// newFetcher builds the scheme dispatcher from the fetch config.
func newFetcher() *fetcher.Mux {
	retry := resilience.FromFetchConfig(cfg.Fetch)
	timeout := time.Duration(cfg.Fetch.TimeoutSecs) * time.Second
	return &fetcher.Mux{
		HTTP: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			Timeout:    timeout,
			RatePerSec: cfg.Fetch.RatePerSec,
			Retry:      retry,
		}),
		FTP: fetcher.NewFTPFetcher(fetcher.FTPOptions{
			Timeout: timeout,
			Retry:   retry,
		}),
	}
}

func init() {
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 2, "datasets downloaded concurrently")
	rootCmd.AddCommand(fetchCmd)
}
