package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusExtracting RunStatus = "extracting"
	RunStatusFetching   RunStatus = "fetching"
	RunStatusGrouping   RunStatus = "grouping"
	RunStatusSplitting  RunStatus = "splitting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RunParams records what a pipeline run was asked to do.
type RunParams struct {
	FacetInput string `json:"facet_input"`
	WorkDir    string `json:"work_dir"`
	OutputDir  string `json:"output_dir"`
	Years      []int  `json:"years"`
	Clusters   []int  `json:"clusters"`
}

// Run represents a single end-to-end pipeline invocation.
type Run struct {
	ID        string     `json:"id"`
	Params    RunParams  `json:"params"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Identifiers   int           `json:"identifiers"`
	Records       int           `json:"records"`
	FetchFailures int           `json:"fetch_failures"`
	Destinations  int           `json:"destinations"`
	Clusters      int           `json:"clusters"`
	Outputs       []string      `json:"outputs,omitempty"`
	Phases        []PhaseResult `json:"phases"`
	Error         string        `json:"error,omitempty"`
}

// RunPhase represents one stage within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline stage.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline stage.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Artifact string         `json:"artifact,omitempty"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
