package generation

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by generation clients
var (
	// ErrInvalidConfig is returned when the client configuration is invalid
	ErrInvalidConfig = errors.New("invalid generation client configuration")
)

// SubmissionError reports that the external service rejected the job before
// it ever ran: a transport failure or a 4xx/5xx response to the submit
// call. It is fatal for the attempt; there is no retry at this layer.
type SubmissionError struct {
	StatusCode int // zero when the request never got a response
	Message    string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("job submission rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("job submission failed: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// JobFailedError reports that the external service accepted and ran the job
// but it ended in failure. Reason carries the service's explanation
// verbatim.
type JobFailedError struct {
	JobID  string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// TimeoutError reports that the job never reached a terminal state within
// the caller's polling budget. Elapsed is recorded for diagnostics; the
// external job may still be running and its eventual result, if any, is
// never retrieved.
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s did not finish within budget (waited %s)", e.JobID, e.Elapsed)
}

// IsSubmissionError reports whether err is a *SubmissionError.
func IsSubmissionError(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se)
}

// IsJobFailedError reports whether err is a *JobFailedError.
func IsJobFailedError(err error) bool {
	var je *JobFailedError
	return errors.As(err, &je)
}

// IsTimeoutError reports whether err is a *TimeoutError.
func IsTimeoutError(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
