package ingest

import (
	"errors"
	"fmt"

	"ingest-backend/internal/validate"
)

var (
	// ErrExtractionFailed marks a version whose bytes are stored but whose
	// text could not be derived.
	ErrExtractionFailed = errors.New("extraction failed for this version")
	// ErrExtractionPending marks a version whose extraction has not settled.
	ErrExtractionPending = errors.New("extraction still pending")
)

// RejectionError is the single error shape for a refused upload. Reason is
// always one of the closed-enum codes.
type RejectionError struct {
	Reason validate.Reason
	Check  string
}

func (e *RejectionError) Error() string {
	if e.Check != "" {
		return fmt.Sprintf("upload rejected: %s (check %s)", e.Reason, e.Check)
	}
	return fmt.Sprintf("upload rejected: %s", e.Reason)
}

func reject(reason validate.Reason, check string) error {
	return &RejectionError{Reason: reason, Check: check}
}
