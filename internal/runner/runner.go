// Package runner chains the four pipeline stages in-process and records each
// stage in the run ledger.
package runner

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/funding-cli/internal/fetcher"
	"github.com/sells-group/funding-cli/internal/model"
	"github.com/sells-group/funding-cli/internal/pipeline"
	"github.com/sells-group/funding-cli/internal/store"
)

// Artifact file names written under the work directory.
const (
	IdentifiersFile = "identifiers.json"
	RecordsFile     = "records.json"
	DeadLetterFile  = "dead_letters.json"
	GroupedFile     = "grouped.json"
)

// Options configures one end-to-end run.
type Options struct {
	FacetInput string
	WorkDir    string
	OutputDir  string
	FetchLimit int
	Extract    pipeline.ExtractOptions
	Group      pipeline.GroupOptions
	// Split.OutputDir is replaced by OutputDir.
	Split pipeline.SplitOptions
}

func (o Options) params() model.RunParams {
	return model.RunParams{
		FacetInput: o.FacetInput,
		WorkDir:    o.WorkDir,
		OutputDir:  o.OutputDir,
		Years:      pipeline.SortedInts(o.Extract.Years),
		Clusters:   pipeline.SortedInts(o.Extract.Clusters),
	}
}

// Runner executes extract, fetch, group and split in sequence.
type Runner struct {
	store   store.Store
	fetcher *fetcher.Fetcher
}

// New creates a Runner.
func New(st store.Store, f *fetcher.Fetcher) *Runner {
	return &Runner{store: st, fetcher: f}
}

// Run executes all stages. A partial fetch failure is recorded and the run
// continues; any other stage error stops the run, marks it failed and is
// returned. The returned run carries the final result in both cases.
func (r *Runner) Run(ctx context.Context, opts Options) (*model.Run, error) {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join(opts.WorkDir, "out")
	}
	opts.Split.OutputDir = opts.OutputDir

	run, err := r.store.CreateRun(ctx, opts.params())
	if err != nil {
		return nil, eris.Wrap(err, "runner: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("runner: starting", zap.String("input", opts.FacetInput))

	result := &model.RunResult{}
	t := &tracker{store: r.store, runID: run.ID, result: result, log: log}

	err = r.stages(ctx, opts, t, result)
	if err != nil {
		result.Error = err.Error()
	}
	if saveErr := r.store.UpdateRunResult(ctx, run.ID, result); saveErr != nil {
		log.Warn("runner: failed to save run result", zap.Error(saveErr))
	}
	run.Result = result
	run.Status = model.RunStatusComplete
	if err != nil {
		run.Status = model.RunStatusFailed
		log.Error("runner: run failed", zap.String("kind", pipeline.Kind(err)), zap.Error(err))
		return run, err
	}

	log.Info("runner: complete",
		zap.Int("identifiers", result.Identifiers),
		zap.Int("records", result.Records),
		zap.Int("fetch_failures", result.FetchFailures),
		zap.Int("clusters", result.Clusters),
	)
	return run, nil
}

func (r *Runner) stages(ctx context.Context, opts Options, t *tracker, result *model.RunResult) error {
	identifiersPath := filepath.Join(opts.WorkDir, IdentifiersFile)
	recordsPath := filepath.Join(opts.WorkDir, RecordsFile)
	groupedPath := filepath.Join(opts.WorkDir, GroupedFile)

	var refs []model.TopicRef
	t.setStatus(ctx, model.RunStatusExtracting)
	err := t.phase(ctx, pipeline.StageExtract, func() (*model.PhaseResult, error) {
		var stats pipeline.ExtractStats
		var err error
		refs, stats, err = pipeline.ExtractFile(opts.FacetInput, identifiersPath, opts.Extract)
		if err != nil {
			return nil, err
		}
		if opts.FetchLimit > 0 && len(refs) > opts.FetchLimit {
			refs = refs[:opts.FetchLimit]
		}
		result.Identifiers = len(refs)
		return &model.PhaseResult{
			Artifact: identifiersPath,
			Metadata: map[string]any{
				"candidates": stats.Candidates,
				"kept":       stats.Kept,
				"injected":   stats.Injected,
				"skipped":    stats.Skipped,
			},
		}, nil
	})
	if err != nil {
		return err
	}

	var records []model.CallRecord
	t.setStatus(ctx, model.RunStatusFetching)
	err = t.phase(ctx, pipeline.StageFetch, func() (*model.PhaseResult, error) {
		recs, report, err := r.fetcher.Fetch(ctx, refs)
		var partial *pipeline.PartialFetchFailure
		if err != nil && !errors.As(err, &partial) {
			return nil, err
		}
		if recs == nil {
			recs = []model.CallRecord{}
		}
		records = recs
		if err := pipeline.WriteJSON(recordsPath, records); err != nil {
			return nil, err
		}
		pr := &model.PhaseResult{
			Artifact: recordsPath,
			Metadata: map[string]any{
				"requested":  report.Requested,
				"fetched":    report.Fetched,
				"cache_hits": report.CacheHits,
				"failed":     len(report.Failures),
			},
		}
		if partial != nil {
			result.FetchFailures = len(partial.Failures)
			dlPath := filepath.Join(opts.WorkDir, DeadLetterFile)
			if err := pipeline.WriteJSON(dlPath, report.Failures); err != nil {
				return nil, err
			}
			pr.Metadata["dead_letters"] = dlPath
			pr.Error = partial.Error()
			t.log.Warn("runner: continuing after partial fetch failure",
				zap.Int("failed", len(partial.Failures)),
				zap.Strings("identifiers", partial.FailedIDs()),
			)
		}
		result.Records = len(records)
		return pr, nil
	})
	if err != nil {
		return err
	}

	var grouped *model.GroupedCollection
	t.setStatus(ctx, model.RunStatusGrouping)
	err = t.phase(ctx, pipeline.StageGroup, func() (*model.PhaseResult, error) {
		g, stats, err := pipeline.Group(records, opts.Group)
		if err != nil {
			return nil, err
		}
		if err := pipeline.WriteJSON(groupedPath, g); err != nil {
			return nil, err
		}
		grouped = g
		result.Destinations = g.Len()
		return &model.PhaseResult{
			Artifact: groupedPath,
			Metadata: map[string]any{
				"destinations":  g.Len(),
				"from_metadata": stats.FromMetadata,
				"from_lookup":   stats.FromLookup,
				"fallback":      stats.Fallback,
			},
		}, nil
	})
	if err != nil {
		return err
	}

	t.setStatus(ctx, model.RunStatusSplitting)
	return t.phase(ctx, pipeline.StageSplit, func() (*model.PhaseResult, error) {
		res, err := pipeline.Split(grouped, opts.Split)
		if err != nil {
			return nil, err
		}
		files, err := pipeline.WriteOutputs(res, opts.Split)
		if err != nil {
			return nil, err
		}
		result.Clusters = len(res.Outputs)
		result.Outputs = files
		meta := map[string]any{
			"clusters": len(res.Outputs),
			"written":  res.Written(),
			"excluded": res.Excluded,
		}
		if res.Retitle != nil {
			meta["renamed"] = res.Retitle.Renamed
			meta["merged"] = res.Retitle.Merged
		}
		return &model.PhaseResult{Artifact: opts.OutputDir, Metadata: meta}, nil
	})
}

// tracker records stage phases and run status in the ledger. Ledger write
// failures are logged and never fail the run.
type tracker struct {
	store  store.Store
	runID  string
	result *model.RunResult
	log    *zap.Logger
}

func (t *tracker) setStatus(ctx context.Context, status model.RunStatus) {
	if err := t.store.UpdateRunStatus(ctx, t.runID, status); err != nil {
		t.log.Warn("runner: failed to update status", zap.Error(err))
	}
}

func (t *tracker) phase(ctx context.Context, stage pipeline.Stage, fn func() (*model.PhaseResult, error)) error {
	name := string(stage)
	phase, phaseErr := t.store.CreatePhase(ctx, t.runID, name)
	if phaseErr != nil {
		t.log.Warn("runner: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
	}

	start := time.Now()
	pr, fnErr := fn()
	duration := time.Since(start).Milliseconds()

	if pr == nil {
		pr = &model.PhaseResult{}
	}
	pr.Name = name
	pr.Duration = duration

	if fnErr != nil {
		pr.Status = model.PhaseStatusFailed
		pr.Error = fnErr.Error()
		t.log.Error("runner: phase failed",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
			zap.Error(fnErr),
		)
	} else {
		pr.Status = model.PhaseStatusComplete
		t.log.Info("runner: phase complete",
			zap.String("phase", name),
			zap.Int64("duration_ms", duration),
		)
	}

	if phase != nil {
		if err := t.store.CompletePhase(ctx, phase.ID, pr); err != nil {
			t.log.Warn("runner: failed to complete phase", zap.String("phase", name), zap.Error(err))
		}
	}
	t.result.Phases = append(t.result.Phases, *pr)
	return fnErr
}
