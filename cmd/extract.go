package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/pipeline"
)

var (
	extractInput    string
	extractOutput   string
	extractYears    []int
	extractClusters []int
	extractCL1Map   string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract targeted topic identifiers from a facet-search document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := extractOptions(cmd)
		if err != nil {
			return err
		}
		if err := validateConfig("extract", pipeline.StageExtract); err != nil {
			return err
		}

		refs, stats, err := pipeline.ExtractFile(extractInput, extractOutput, opts)
		if err != nil {
			return err
		}
		zap.L().Info("extract: complete",
			zap.String("output", extractOutput),
			zap.Int("identifiers", len(refs)),
			zap.Int("candidates", stats.Candidates),
			zap.Int("injected", stats.Injected),
			zap.Int("skipped", stats.Skipped),
		)
		return nil
	},
}

// extractOptions merges extract flags over configuration. Flags that were not
// set keep the configured values.
func extractOptions(cmd *cobra.Command) (pipeline.ExtractOptions, error) {
	if cmd.Flags().Changed("years") {
		cfg.Extract.Years = extractYears
	}
	if cmd.Flags().Changed("clusters") {
		cfg.Extract.Clusters = extractClusters
	}
	opts := pipeline.ExtractOptions{
		Years:    cfg.Extract.Years,
		Clusters: cfg.Extract.Clusters,
	}

	path := extractCL1Map
	if path == "" {
		path = cfg.Maps.CL1
	}
	if path != "" {
		m, err := pipeline.LoadLookupMap(path, 1)
		if err != nil {
			return opts, err
		}
		opts.Inject = m
	}
	return opts, nil
}

func init() {
	extractCmd.Flags().StringVar(&extractInput, "input", "", "facet-search JSON document (required)")
	extractCmd.Flags().StringVar(&extractOutput, "output", "identifiers.json", "identifier list to write")
	extractCmd.Flags().IntSliceVar(&extractYears, "years", nil, "target years (default from extract.years)")
	extractCmd.Flags().IntSliceVar(&extractClusters, "clusters", nil, "target clusters 1-6 (default from extract.clusters)")
	extractCmd.Flags().StringVar(&extractCL1Map, "cl1-map", "", "cluster 1 lookup map whose identifiers are injected")
	_ = extractCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(extractCmd)
}
