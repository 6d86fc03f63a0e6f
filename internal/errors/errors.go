// Package errors holds the typed failures shared by the attempt subsystems.
package errors

import (
	"errors"
	"fmt"
)

// Sentinels for guarded operations.
var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrNotRetryable     = errors.New("submission can only be retried after a failure")
	ErrCaptureInactive  = errors.New("no capture in progress")
	ErrCaptureBusy      = errors.New("another capture is in progress")
	ErrMediaNotAccepted = errors.New("question does not accept image answers")
	ErrFieldNotEditable = errors.New("answer field is not editable")
	ErrInvalidOption    = errors.New("option is not offered by this question")
)

// LoadError means a test definition could not start a session.
type LoadError struct {
	TestID string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load test %s: %s: %v", e.TestID, e.Reason, e.Err)
	}
	return fmt.Sprintf("load test %s: %s", e.TestID, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IndexError is a caller bug: a question index outside the test.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("question index %d out of range [0, %d)", e.Index, e.Count)
}

// NotFoundError is returned by definition sources for unknown test IDs.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// DeviceError means the capture device is unavailable or access was denied.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("capture device unavailable: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// RecognitionError means text extraction failed. The image stays attached.
type RecognitionError struct {
	QuestionIndex int
	Err           error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognize question %d: %v", e.QuestionIndex, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// SubmissionError is a network or server fault during delivery.
type SubmissionError struct {
	StatusCode int
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("deliver submission: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("deliver submission: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// ValidationError is a malformed submission payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 1 {
		for field, msg := range e.Fields {
			return fmt.Sprintf("invalid submission: %s %s", field, msg)
		}
	}
	return fmt.Sprintf("invalid submission: %d field errors", len(e.Fields))
}

// IsRecoverable reports whether the user can continue after err.
func IsRecoverable(err error) bool {
	var (
		de *DeviceError
		re *RecognitionError
		se *SubmissionError
	)
	return errors.As(err, &de) || errors.As(err, &re) || errors.As(err, &se)
}
