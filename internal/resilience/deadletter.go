package resilience

import (
	"time"
)

// DeadLetter records an identifier whose lookup failed, so a later fetch can
// be pointed at just the failures.
type DeadLetter struct {
	ID        string    `json:"id"`
	Error     string    `json:"error"`
	ErrorType string    `json:"error_type"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewDeadLetter builds an entry for id from its final error.
func NewDeadLetter(id string, err error, attempts int, now time.Time) DeadLetter {
	return DeadLetter{
		ID:        id,
		Error:     err.Error(),
		ErrorType: ClassifyError(err),
		Attempts:  attempts,
		FailedAt:  now.UTC(),
	}
}

// CanRetry reports whether a later run has a chance of succeeding.
func (d DeadLetter) CanRetry() bool {
	return d.ErrorType == "transient"
}
