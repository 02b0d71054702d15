package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Stage names a pipeline step.
type Stage string

const (
	StageExtract Stage = "extract"
	StageFetch   Stage = "fetch"
	StageGroup   Stage = "group"
	StageSplit   Stage = "split"
)

// ValidationError reports a malformed or unexpectedly shaped input document.
type ValidationError struct {
	Stage Stage
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	return formatStageError(e.Stage, "validation", e.Msg, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError reports missing or contradictory parameters.
type ConfigurationError struct {
	Stage Stage
	Msg   string
}

func (e *ConfigurationError) Error() string {
	return formatStageError(e.Stage, "configuration", e.Msg, nil)
}

// ConsistencyError reports a violated post-condition, such as a record count
// mismatch between a stage's input and output.
type ConsistencyError struct {
	Stage Stage
	Msg   string
}

func (e *ConsistencyError) Error() string {
	return formatStageError(e.Stage, "consistency", e.Msg, nil)
}

// FetchFailure is one identifier that could not be enriched.
type FetchFailure struct {
	ID  string
	Err error
}

// PartialFetchFailure reports identifiers the fetcher had to drop. It is
// recoverable: the surviving records are still written.
type PartialFetchFailure struct {
	Requested int
	Failures  []FetchFailure
}

func (e *PartialFetchFailure) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for i, f := range e.Failures {
		if i == 5 {
			ids = append(ids, "...")
			break
		}
		ids = append(ids, f.ID)
	}
	return fmt.Sprintf("fetch: %d of %d identifiers failed (%s)",
		len(e.Failures), e.Requested, strings.Join(ids, ", "))
}

// FailedIDs returns the identifiers that failed, in request order.
func (e *PartialFetchFailure) FailedIDs() []string {
	out := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.ID
	}
	return out
}

func formatStageError(stage Stage, kind, msg string, cause error) string {
	s := fmt.Sprintf("%s error: %s", kind, msg)
	if stage != "" {
		s = string(stage) + ": " + s
	}
	if cause != nil {
		s += ": " + cause.Error()
	}
	return s
}

func validationf(stage Stage, cause error, format string, args ...any) error {
	return &ValidationError{Stage: stage, Msg: fmt.Sprintf(format, args...), Err: cause}
}

func configurationf(stage Stage, format string, args ...any) error {
	return &ConfigurationError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

func consistencyf(stage Stage, format string, args ...any) error {
	return &ConsistencyError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// IsRecoverable reports whether err only signals a partial fetch failure and
// the pipeline may continue.
func IsRecoverable(err error) bool {
	if err == nil {
		return true
	}
	var pf *PartialFetchFailure
	if !errors.As(err, &pf) {
		return false
	}
	var ve *ValidationError
	var ce *ConfigurationError
	var xe *ConsistencyError
	return !errors.As(err, &ve) && !errors.As(err, &ce) && !errors.As(err, &xe)
}

// Kind returns a short label for the error class, used in logs and run records.
func Kind(err error) string {
	var ve *ValidationError
	var ce *ConfigurationError
	var xe *ConsistencyError
	var pf *PartialFetchFailure
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &ce):
		return "configuration"
	case errors.As(err, &xe):
		return "consistency"
	case errors.As(err, &pf):
		return "partial_fetch"
	default:
		return "internal"
	}
}
