// Package submission delivers a finished answer collection to the submission
// service. It keeps no state between calls; the session decides how often
// Submit runs.
package submission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

// Gateway performs the network delivery of a payload.
type Gateway interface {
	Deliver(ctx context.Context, payload model.SubmissionPayload) (model.SubmissionResult, error)
}

// Submitter validates and delivers submissions.
type Submitter struct {
	gateway Gateway
	log     zerolog.Logger
}

// NewSubmitter creates a new Submitter.
func NewSubmitter(gateway Gateway, log zerolog.Logger) *Submitter {
	return &Submitter{
		gateway: gateway,
		log:     log.With().Str("component", "submitter").Logger(),
	}
}

// Submit serializes answers in question-index order and performs one delivery.
// Malformed payloads fail with *errors.ValidationError before any network
// call; delivery faults are returned as *errors.SubmissionError.
func (s *Submitter) Submit(ctx context.Context, testID string, answers []model.AnswerRecord) (model.SubmissionResult, error) {
	payload := model.SubmissionPayload{
		TestID:  testID,
		Answers: model.CloneAnswers(answers),
	}

	if err := Validate(payload); err != nil {
		s.log.Error().Err(err).Str("test_id", testID).Msg("Refusing malformed submission")
		return model.SubmissionResult{}, err
	}

	start := time.Now()
	result, err := s.gateway.Deliver(ctx, payload)
	if err != nil {
		var subErr *apperrors.SubmissionError
		if !errors.As(err, &subErr) {
			err = &apperrors.SubmissionError{Err: err}
		}
		s.log.Warn().Err(err).Str("test_id", testID).Dur("took", time.Since(start)).Msg("Submission delivery failed")
		return model.SubmissionResult{}, err
	}

	if result.ResultID == "" {
		err := &apperrors.SubmissionError{Err: errors.New("submission service returned no result id")}
		s.log.Warn().Err(err).Str("test_id", testID).Msg("Submission delivery failed")
		return model.SubmissionResult{}, err
	}

	s.log.Info().
		Str("test_id", testID).
		Str("result_id", result.ResultID).
		Int("answers", len(payload.Answers)).
		Dur("took", time.Since(start)).
		Msg("Submission delivered")
	return result, nil
}

// Validate checks the payload tags and that every record sits at the
// position named by its question_index.
func Validate(payload model.SubmissionPayload) error {
	if err := validator.Struct(payload); err != nil {
		return &apperrors.ValidationError{Fields: validator.TranslateErrors(err)}
	}

	fields := make(map[string]string)
	for i, a := range payload.Answers {
		if a.QuestionIndex != i {
			fields[fmt.Sprintf("answers[%d].question_index", i)] = fmt.Sprintf("must be %d, got %d", i, a.QuestionIndex)
		}
	}
	if len(fields) > 0 {
		return &apperrors.ValidationError{Fields: fields}
	}
	return nil
}
