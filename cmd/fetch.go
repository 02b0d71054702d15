package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/fetcher"
	"github.com/sells-group/funding-cli/internal/pipeline"
)

var (
	fetchInput       string
	fetchOutput      string
	fetchConcurrency int
	fetchNoCache     bool
	fetchLimit       int
	fetchDeadLetter  string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch Search API metadata for an identifier list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if fetchConcurrency > 0 {
			cfg.Fetch.Concurrency = fetchConcurrency
		}
		if err := validateConfig("fetch", pipeline.StageFetch); err != nil {
			return err
		}

		var cache fetcher.Cache
		if !fetchNoCache {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return err
			}
			cache = st
		}

		f := initFetcher(cache, cfg.Fetch.Concurrency)
		report, err := f.FetchFile(ctx, fetchInput, fetchOutput, fetcher.FileOptions{
			Limit:          fetchLimit,
			DeadLetterPath: fetchDeadLetter,
		})
		if err := warnPartial(err); err != nil {
			return err
		}
		zap.L().Info("fetch: wrote records",
			zap.String("output", fetchOutput),
			zap.Int("requested", report.Requested),
			zap.Int("fetched", report.Fetched),
			zap.Int("cache_hits", report.CacheHits),
			zap.Int("failed", len(report.Failures)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchInput, "input", "", "identifier list from extract (required)")
	fetchCmd.Flags().StringVar(&fetchOutput, "output", "records.json", "enriched record list to write")
	fetchCmd.Flags().IntVar(&fetchConcurrency, "concurrency", 0, "parallel lookups (default from fetch.concurrency)")
	fetchCmd.Flags().BoolVar(&fetchNoCache, "no-cache", false, "skip the metadata cache")
	fetchCmd.Flags().IntVar(&fetchLimit, "limit", 0, "fetch only the first N identifiers (0 = all)")
	fetchCmd.Flags().StringVar(&fetchDeadLetter, "dead-letter", "", "write failed identifiers here; the file is valid fetch input")
	_ = fetchCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(fetchCmd)
}
