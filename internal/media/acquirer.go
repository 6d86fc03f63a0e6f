// Package media acquires handwritten answers: images selected as files or
// photographed through a live camera, followed by a text recognition request.
package media

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/recognition"
)

// Patch is the answer update proposed by one acquisition round-trip.
type Patch struct {
	QuestionIndex  int
	EncodedImage   string
	RecognizedText *string
}

// Acquirer turns raw image bytes into a Patch. It never mutates answers itself.
type Acquirer struct {
	recognizer recognition.Recognizer
	opts       ImageOptions
	log        zerolog.Logger
}

// NewAcquirer creates an Acquirer. A nil recognizer disables text extraction.
func NewAcquirer(recognizer recognition.Recognizer, opts ImageOptions, log zerolog.Logger) *Acquirer {
	if recognizer == nil {
		recognizer = recognition.Disabled{}
	}
	return &Acquirer{
		recognizer: recognizer,
		opts:       opts.withDefaults(),
		log:        log.With().Str("component", "media_acquirer").Logger(),
	}
}

// Intake accepts an image for questionIndex and sends it for recognition once.
//
// If the image itself is rejected, no patch is returned. If only recognition
// fails, the returned patch still carries the image and the error is a
// *errors.RecognitionError.
func (a *Acquirer) Intake(ctx context.Context, questionIndex int, data []byte) (*Patch, error) {
	encoded, err := NormalizeImage(data, a.opts)
	if err != nil {
		return nil, fmt.Errorf("accept image: %w", err)
	}

	patch := &Patch{QuestionIndex: questionIndex, EncodedImage: encoded}

	text, err := a.recognizer.Recognize(ctx, encoded)
	if err != nil {
		a.log.Warn().Err(err).Int("question_index", questionIndex).Msg("Recognition failed, keeping image")
		return patch, &apperrors.RecognitionError{QuestionIndex: questionIndex, Err: err}
	}

	patch.RecognizedText = &text
	return patch, nil
}
