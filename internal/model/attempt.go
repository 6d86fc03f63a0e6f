package model

import "time"

// SubmissionStatus enumerates the submission lifecycle of an attempt.
// Transitions are one-way except failed -> submitting on an explicit retry.
type SubmissionStatus string

const (
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitting SubmissionStatus = "submitting"
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusFailed     SubmissionStatus = "failed"
)

// IsTerminal reports whether no automatic transition can leave the status.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusSubmitted || s == StatusFailed
}

// SessionState is the navigational and timing state of an attempt.
type SessionState struct {
	CurrentIndex     int              `json:"current_index"`
	RemainingSeconds int              `json:"remaining_seconds"`
	Status           SubmissionStatus `json:"status"`
}

// SubmitTrigger records what started a delivery.
type SubmitTrigger string

const (
	TriggerManual SubmitTrigger = "manual"
	TriggerExpiry SubmitTrigger = "expiry"
	TriggerRetry  SubmitTrigger = "retry"
)

// SubmissionPayload is the body delivered to the submission service.
type SubmissionPayload struct {
	TestID  string         `json:"test_id" validate:"required"`
	Answers []AnswerRecord `json:"answers" validate:"required,min=1,dive"`
}

// SubmissionResult is the submission service's acknowledgement.
type SubmissionResult struct {
	ResultID string `json:"result_id"`
}

// Snapshot is a point-in-time copy of an attempt, used for drafts and rendering.
type Snapshot struct {
	AttemptID string         `json:"attempt_id"`
	TestID    string         `json:"test_id"`
	StudentID int            `json:"student_id"`
	State     SessionState   `json:"state"`
	Answers   []AnswerRecord `json:"answers"`
	SavedAt   time.Time      `json:"saved_at"`
}

// DeliveryOutcome is the result of one delivery attempt.
type DeliveryOutcome string

const (
	OutcomeDelivered DeliveryOutcome = "delivered"
	OutcomeFailed    DeliveryOutcome = "failed"
	OutcomeRejected  DeliveryOutcome = "rejected"
)

// DeliveryRecord is the audit entry written for every delivery an attempt makes.
type DeliveryRecord struct {
	AttemptID   string          `json:"attempt_id"`
	TestID      string          `json:"test_id"`
	StudentID   int             `json:"student_id"`
	Trigger     SubmitTrigger   `json:"trigger"`
	Outcome     DeliveryOutcome `json:"outcome"`
	ResultID    string          `json:"result_id,omitempty"`
	Error       string          `json:"error,omitempty"`
	AnswerCount int             `json:"answer_count"`
	DeliveredAt time.Time       `json:"delivered_at"`
}
