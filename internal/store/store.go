// Package store persists the pipeline run ledger and the metadata fetch cache.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/funding-cli/internal/model"
)

// ErrNotFound is returned, wrapped, when a run or phase does not exist.
var ErrNotFound = eris.New("store: not found")

// Store records pipeline runs and caches fetched topic metadata.
type Store interface {
	CreateRun(ctx context.Context, params model.RunParams) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	// UpdateRunResult stores the final result. The run becomes failed when
	// result.Error is set and complete otherwise.
	UpdateRunResult(ctx context.Context, runID string, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	CreatePhase(ctx context.Context, runID string, name string) (*model.RunPhase, error)
	CompletePhase(ctx context.Context, phaseID string, result *model.PhaseResult) error
	ListPhases(ctx context.Context, runID string) ([]model.RunPhase, error)

	// GetCachedResult returns the cached search result for a topic
	// identifier. ok is false when nothing unexpired is cached.
	GetCachedResult(ctx context.Context, identifier string) (data []byte, ok bool, err error)
	PutCachedResult(ctx context.Context, identifier string, data []byte, ttl time.Duration) error
	DeleteExpiredCache(ctx context.Context) (int, error)

	Migrate(ctx context.Context) error
	Close() error
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
	Offset int
}

const defaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

func finalStatus(result *model.RunResult) model.RunStatus {
	if result != nil && result.Error != "" {
		return model.RunStatusFailed
	}
	return model.RunStatusComplete
}
