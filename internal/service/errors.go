package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSubmissionInProgress is returned when a submission with the same
	// idempotency key is still being processed.
	ErrSubmissionInProgress = errors.New("a submission with this idempotency key is in progress")

	// ErrNoReport is returned when no report file has been generated yet.
	ErrNoReport = errors.New("no report has been generated yet")
)

// ValidationError lists every rule a submission broke. A rejected
// submission never reaches storage.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// SubmissionError wraps a storage failure during submission
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("failed to submit return: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// RecordedError is returned when a return was stored but the records could
// not be read back afterwards. The order id is valid; submitting again
// would store a second copy.
type RecordedError struct {
	OrderID int64
	Err     error
}

func (e *RecordedError) Error() string {
	return fmt.Sprintf("return recorded as order %d but records could not be read: %v", e.OrderID, e.Err)
}

func (e *RecordedError) Unwrap() error {
	return e.Err
}
