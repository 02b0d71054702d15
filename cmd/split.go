package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/pipeline"
)

var (
	splitInput           string
	splitOutputDir       string
	splitTemplate        string
	splitSummaries       bool
	splitSummaryTemplate string
	splitIndex           string
	splitOutUpdated      string
	splitDryRun          bool
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Split a grouped document into one file per cluster",
	RunE: func(cmd *cobra.Command, _ []string) error {
		opts, err := splitOptions(cmd)
		if err != nil {
			return err
		}

		res, err := pipeline.SplitFile(splitInput, opts)
		if err != nil {
			return err
		}
		formatSplitResult(os.Stdout, res, opts)
		zap.L().Info("split: complete",
			zap.Int("clusters", len(res.Outputs)),
			zap.Int("records", res.Written()),
			zap.Int("excluded", res.Excluded),
			zap.String("updated", opts.UpdatedPath),
			zap.Bool("dry_run", opts.DryRun),
		)
		return nil
	},
}

// splitOptions merges split flags over configuration and loads the
// destination index when one is configured.
func splitOptions(cmd *cobra.Command) (pipeline.SplitOptions, error) {
	if splitTemplate != "" {
		cfg.Split.Template = splitTemplate
	}
	if splitSummaryTemplate != "" {
		cfg.Split.SummaryTemplate = splitSummaryTemplate
	}
	if cmd.Flags().Changed("summaries") {
		cfg.Split.WriteSummaries = splitSummaries
	}
	if splitIndex != "" {
		cfg.Split.Index = splitIndex
	}
	if err := validateConfig("split", pipeline.StageSplit); err != nil {
		return pipeline.SplitOptions{}, err
	}

	opts := pipeline.SplitOptions{
		OutputDir:       splitOutputDir,
		Template:        cfg.Split.Template,
		Summaries:       cfg.Split.WriteSummaries,
		SummaryTemplate: cfg.Split.SummaryTemplate,
		UpdatedPath:     splitOutUpdated,
		DryRun:          splitDryRun,
	}
	if opts.OutputDir == "" {
		opts.OutputDir = cfg.Run.OutputDir
	}
	if cfg.Split.Index != "" {
		ix, err := pipeline.LoadDestinationIndex(cfg.Split.Index)
		if err != nil {
			return opts, err
		}
		zap.L().Debug("split: destination index loaded",
			zap.Int("codes", ix.Len()),
			zap.Int("alternates", ix.Alternates()),
		)
		opts.Index = ix
	}
	return opts, nil
}

// formatSplitResult writes one row per cluster output.
func formatSplitResult(w io.Writer, res *pipeline.SplitResult, opts pipeline.SplitOptions) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Cluster", "Destinations", "Records", "File"})
	for _, out := range res.Outputs {
		file := filepath.Join(opts.OutputDir, pipeline.RenderTemplate(opts.Template, out.Cluster))
		if opts.DryRun {
			file += " (dry run)"
		}
		t.AppendRow(table.Row{out.Cluster, out.Destinations.Len(), out.Destinations.Count(), file})
	}
	t.AppendFooter(table.Row{"", "", res.Written(), ""})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func init() {
	splitCmd.Flags().StringVar(&splitInput, "input", "", "grouped document from group (required)")
	splitCmd.Flags().StringVar(&splitOutputDir, "output-dir", "", "directory for cluster files (default from run.output_dir)")
	splitCmd.Flags().StringVar(&splitTemplate, "template", "", "output file name containing {cluster}")
	splitCmd.Flags().BoolVar(&splitSummaries, "summaries", true, "write a per-cluster destination count summary")
	splitCmd.Flags().StringVar(&splitSummaryTemplate, "summary-template", "", "summary file name containing {cluster}")
	splitCmd.Flags().StringVar(&splitIndex, "index", "", "destination index used to retitle destination codes")
	splitCmd.Flags().StringVar(&splitOutUpdated, "out-updated", "", "also write the whole grouped document, retitled, to this path")
	splitCmd.Flags().BoolVar(&splitDryRun, "dry-run", false, "report the split without writing files")
	_ = splitCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(splitCmd)
}
