package session

import (
	"errors"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/observability"
)

// SetAnswerField replaces one field of the answer at index i. Answers are
// frozen once delivery starts; a failed delivery reopens them until retry.
func (s *Session) SetAnswerField(i int, field model.AnswerField, value string) error {
	return s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if err := s.checkIndex(i); err != nil {
			return err
		}
		switch s.state.Status {
		case model.StatusSubmitting, model.StatusSubmitted:
			return apperrors.ErrSessionClosed
		}
		if err := s.checkAnswer(i, field, value); err != nil {
			return err
		}

		s.answers[i].Set(field, value)
		s.changed(i)
		return nil
	})
}

// checkAnswer rejects writes the question cannot take. An empty option
// clears the selection on any question.
func (s *Session) checkAnswer(i int, field model.AnswerField, value string) error {
	switch field {
	case model.FieldAnswerText:
		return nil
	case model.FieldSelectedOption:
		q := &s.def.Questions[i]
		if value == "" || (q.Type == model.QuestionTypeMultipleChoice && q.HasOption(value)) {
			return nil
		}
		return apperrors.ErrInvalidOption
	}
	return apperrors.ErrFieldNotEditable
}

// Navigate moves the current question by delta, clamped to the test bounds,
// and returns the new index.
func (s *Session) Navigate(delta int) (int, error) {
	var index int
	err := s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		index = s.state.CurrentIndex + delta
		if index < 0 {
			index = 0
		}
		if last := len(s.answers) - 1; index > last {
			index = last
		}
		if index != s.state.CurrentIndex {
			s.state.CurrentIndex = index
			s.saveDraft()
		}
		return nil
	})
	return index, err
}

// ApplyRecognitionResult merges an acquired image and its recognized text
// into the answer at index i. Text the student typed is never touched. The
// merge is dropped once the attempt has left in_progress or was closed.
func (s *Session) ApplyRecognitionResult(i int, encodedImage string, recognizedText *string) error {
	var text *string
	if recognizedText != nil {
		v := *recognizedText
		text = &v
	}
	err := s.do(func() error {
		if err := s.checkIndex(i); err != nil {
			return err
		}
		s.merge(&media.Patch{QuestionIndex: i, EncodedImage: encodedImage, RecognizedText: text})
		return nil
	})
	if errors.Is(err, apperrors.ErrSessionClosed) {
		s.dropMerge("closed", i)
		return nil
	}
	return err
}

// merge applies patch and reports whether it was kept.
func (s *Session) merge(patch *media.Patch) bool {
	i := patch.QuestionIndex
	if s.closed {
		s.dropMerge("closed", i)
		return false
	}
	if s.state.Status != model.StatusInProgress {
		s.dropMerge(string(s.state.Status), i)
		return false
	}

	rec := &s.answers[i]
	if patch.EncodedImage != "" {
		rec.Set(model.FieldAttachedImage, patch.EncodedImage)
	}
	if patch.RecognizedText != nil {
		rec.Set(model.FieldRecognizedText, *patch.RecognizedText)
	}
	s.changed(i)
	return true
}

func (s *Session) dropMerge(reason string, i int) {
	observability.DroppedMerges().WithLabelValues(reason).Inc()
	s.log.Info().Str("reason", reason).Int("question_index", i).Msg("Dropped late recognition result")
}
