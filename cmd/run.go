package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/fetcher"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/internal/runner"
)

var (
	runInput     string
	runWorkDir   string
	runOutputDir string
	runLimit     int
	runNoCache   bool
	runCL1Map    string
	runCL2Map    string
	runCL3Map    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run extract, fetch, group and split end to end",
	Long:  "Runs all four stages in-process, writing intermediate artifacts to the work directory and recording the run and its phases in the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if runWorkDir != "" {
			cfg.Run.WorkDir = runWorkDir
		}
		if runOutputDir != "" {
			cfg.Run.OutputDir = runOutputDir
		}
		if err := validateConfig("run", pipeline.StageExtract); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		opts, err := runOptions()
		if err != nil {
			return err
		}

		var cache fetcher.Cache = st
		if runNoCache {
			cache = nil
		}
		r := runner.New(st, initFetcher(cache, 0))
		run, err := r.Run(ctx, opts)
		if run != nil {
			formatRunSummary(os.Stdout, run)
		}
		if err != nil {
			return err
		}
		zap.L().Info("run: outputs written", zap.Strings("files", run.Result.Outputs))
		return nil
	},
}

func runOptions() (runner.Options, error) {
	opts := runner.Options{
		FacetInput: runInput,
		WorkDir:    cfg.Run.WorkDir,
		OutputDir:  cfg.Run.OutputDir,
		FetchLimit: runLimit,
		Extract: pipeline.ExtractOptions{
			Years:    cfg.Extract.Years,
			Clusters: cfg.Extract.Clusters,
		},
		Split: pipeline.SplitOptions{
			Template:        cfg.Split.Template,
			Summaries:       cfg.Split.WriteSummaries,
			SummaryTemplate: cfg.Split.SummaryTemplate,
		},
	}

	ix, err := loadLookupIndex(map[int]string{1: runCL1Map, 2: runCL2Map, 3: runCL3Map})
	if err != nil {
		return opts, err
	}
	opts.Group = pipeline.GroupOptions{Lookup: ix, UnknownKey: cfg.Group.UnknownKey}

	cl1 := runCL1Map
	if cl1 == "" {
		cl1 = cfg.Maps.CL1
	}
	if cl1 != "" {
		m, err := pipeline.LoadLookupMap(cl1, 1)
		if err != nil {
			return opts, err
		}
		opts.Extract.Inject = m
	}

	if cfg.Split.Index != "" {
		dix, err := pipeline.LoadDestinationIndex(cfg.Split.Index)
		if err != nil {
			return opts, err
		}
		opts.Split.Index = dix
	}
	return opts, nil
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "facet-search JSON document (required)")
	runCmd.Flags().StringVar(&runWorkDir, "work-dir", "", "directory for intermediate artifacts (default from run.work_dir)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "directory for cluster files (default from run.output_dir)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "fetch only the first N identifiers (0 = all)")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "skip the metadata cache")
	runCmd.Flags().StringVar(&runCL1Map, "cl1-map", "", "cluster 1 lookup map (overrides maps.cl1)")
	runCmd.Flags().StringVar(&runCL2Map, "cl2-map", "", "cluster 2 lookup map (overrides maps.cl2)")
	runCmd.Flags().StringVar(&runCL3Map, "cl3-map", "", "cluster 3 lookup map (overrides maps.cl3)")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}
