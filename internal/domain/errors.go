package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy returned by the workflow operations. Handlers map each kind
// to its own status code and message, nothing is swallowed.
var (
	ErrNotFound         = errors.New("not found")
	ErrIncompatible     = errors.New("service not compatible with selected device")
	ErrValidation       = errors.New("validation failed")
	ErrSlotUnavailable  = errors.New("appointment slot unavailable")
	ErrNotOwner         = errors.New("slot held by another session")
	ErrStepOrder        = errors.New("operation not allowed at current step")
	ErrSubmissionFailed = errors.New("booking submission failed")
)

// SubmissionError carries the gateway outcome. Retryable failures (timeouts,
// 5xx) leave the session at confirmation so Submit can be called again.
type SubmissionError struct {
	StatusCode int
	Retryable  bool
	Reason     string
}

func (e *SubmissionError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("booking submission failed: status %d: %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("booking submission failed: %s", e.Reason)
}

func (e *SubmissionError) Unwrap() error { return ErrSubmissionFailed }
