// Package recognition turns photographed handwriting into text.
package recognition

import (
	"context"
	"errors"
)

// ErrDisabled is returned by Disabled for every request.
var ErrDisabled = errors.New("text recognition is not configured")

// Recognizer extracts text from a base64-encoded JPEG.
type Recognizer interface {
	Recognize(ctx context.Context, encodedJPEG string) (string, error)
}

// Disabled is used when no recognition backend is configured. Images are
// still attached to answers; only the extracted text is missing.
type Disabled struct{}

// Recognize always fails with ErrDisabled.
func (Disabled) Recognize(context.Context, string) (string, error) {
	return "", ErrDisabled
}
