package session

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/observability"
)

// OnCountdownExpired forces submission when the attempt is still in
// progress. It reports whether a delivery was started; repeated or late
// calls are no-ops.
func (s *Session) OnCountdownExpired() (bool, error) {
	var started bool
	err := s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		started = s.expire()
		return nil
	})
	return started, err
}

// SubmitManually starts delivery on the student's request. Only the first
// call while in progress has an effect.
func (s *Session) SubmitManually() (bool, error) {
	var started bool
	err := s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if s.state.Status != model.StatusInProgress {
			s.log.Debug().Str("status", string(s.state.Status)).Msg("Ignoring submit request")
			return nil
		}
		started = s.beginDelivery(model.TriggerManual)
		return nil
	})
	return started, err
}

// Retry makes a new, explicit delivery after a failed one.
func (s *Session) Retry() error {
	return s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if s.state.Status != model.StatusFailed {
			return apperrors.ErrNotRetryable
		}
		s.beginDelivery(model.TriggerRetry)
		return nil
	})
}

// Deliveries returns how many deliveries the session has started.
func (s *Session) Deliveries() int {
	var n int
	s.read(func() { n = s.deliveries })
	return n
}

func (s *Session) expire() bool {
	if s.closed || s.state.Status != model.StatusInProgress {
		return false
	}
	observability.Expiries().Inc()
	s.state.RemainingSeconds = 0
	s.log.Info().Msg("Countdown expired, submitting")
	return s.beginDelivery(model.TriggerExpiry)
}

// beginDelivery is the only place that moves an attempt into submitting.
func (s *Session) beginDelivery(trigger model.SubmitTrigger) bool {
	switch {
	case s.state.Status == model.StatusInProgress:
	case s.state.Status == model.StatusFailed && trigger == model.TriggerRetry:
	default:
		return false
	}

	s.state.Status = model.StatusSubmitting
	s.deliveries++
	s.timer.Stop()
	if s.capture != nil && s.capture.Cancel() == nil {
		s.emitCapture()
	}

	// A reconnect during delivery must find the draft marked submitting.
	s.saveDraft()

	snap := s.snapshot()
	ctx := s.taskCtx
	s.log.Info().Str("trigger", string(trigger)).Int("delivery", s.deliveries).Msg("Delivering submission")
	s.listener.OnSubmitting(trigger)

	go s.deliver(ctx, trigger, snap)
	return true
}

func (s *Session) deliver(ctx context.Context, trigger model.SubmitTrigger, snap model.Snapshot) {
	answers := snap.Answers
	result, err := s.deps.Submitter.Submit(ctx, s.def.ID, answers)

	outcome := model.OutcomeDelivered
	if err != nil {
		outcome = model.OutcomeFailed
		var verr *apperrors.ValidationError
		if errors.As(err, &verr) {
			outcome = model.OutcomeRejected
		}
	}
	observability.Submissions().WithLabelValues(string(trigger), string(outcome)).Inc()
	s.journal(ctx, trigger, outcome, len(answers), result, err)

	if s.post(func() { s.finishDelivery(trigger, outcome, result, err) }) {
		return
	}

	s.log.Warn().
		Str("outcome", string(outcome)).
		Str("result_id", result.ResultID).
		Msg("Session closed before delivery finished")
	if err == nil && s.deps.Drafts != nil {
		s.markSubmitted(ctx, snap)
	}
}

// markSubmitted overwrites the draft of a closed session whose delivery went
// through, so a later Open refuses the attempt instead of delivering it
// again. It waits for the session's own draft writes to finish first.
func (s *Session) markSubmitted(ctx context.Context, snap model.Snapshot) {
	<-s.released
	snap.State.Status = model.StatusSubmitted
	snap.SavedAt = time.Now()
	if err := s.deps.Drafts.Save(ctx, snap); err != nil {
		s.log.Error().Err(err).Msg("Failed to mark draft submitted")
	}
}

func (s *Session) finishDelivery(trigger model.SubmitTrigger, outcome model.DeliveryOutcome, result model.SubmissionResult, err error) {
	if s.closed {
		return
	}

	if err != nil {
		s.state.Status = model.StatusFailed
		if outcome == model.OutcomeRejected {
			s.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission payload rejected")
		} else {
			s.log.Warn().Err(err).Str("trigger", string(trigger)).Msg("Submission failed, waiting for retry")
		}
		s.listener.OnSubmitFailed(err)
		s.saveDraft()
		return
	}

	s.state.Status = model.StatusSubmitted
	s.log.Info().Str("trigger", string(trigger)).Str("result_id", result.ResultID).Msg("Submission delivered")
	s.listener.OnSubmitted(result.ResultID)
	s.deleteDraft()
}

func (s *Session) journal(ctx context.Context, trigger model.SubmitTrigger, outcome model.DeliveryOutcome, count int, result model.SubmissionResult, err error) {
	if s.deps.Journal == nil {
		return
	}
	rec := model.DeliveryRecord{
		AttemptID:   s.id,
		TestID:      s.def.ID,
		StudentID:   s.studentID,
		Trigger:     trigger,
		Outcome:     outcome,
		ResultID:    result.ResultID,
		AnswerCount: count,
		DeliveredAt: time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if jerr := s.deps.Journal.RecordDelivery(ctx, rec); jerr != nil {
		s.log.Error().Err(jerr).Msg("Failed to journal delivery")
	}
}
