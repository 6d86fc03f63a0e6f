package model

import "fmt"

// AnswerField names one independently writable part of an AnswerRecord.
type AnswerField string

const (
	FieldAnswerText     AnswerField = "answer_text"
	FieldSelectedOption AnswerField = "selected_option"
	FieldAttachedImage  AnswerField = "attached_image"
	FieldRecognizedText AnswerField = "recognized_text"
)

// Editable reports whether the student may write the field directly. The
// image and its recognized text only arrive through media intake.
func (f AnswerField) Editable() bool {
	return f == FieldAnswerText || f == FieldSelectedOption
}

// ParseAnswerField validates a field name received from the shell. Only
// editable fields are accepted.
func ParseAnswerField(raw string) (AnswerField, error) {
	if f := AnswerField(raw); f.Editable() {
		return f, nil
	}
	return "", fmt.Errorf("unknown answer field %q", raw)
}

// AnswerRecord is the mutable answer state of one question.
// Text and image answers coexist; recognized text supplements typed text.
type AnswerRecord struct {
	QuestionIndex  int     `json:"question_index" validate:"min=0"`
	AnswerText     string  `json:"answer_text"`
	SelectedOption string  `json:"selected_option"`
	AttachedImage  *string `json:"handwritten_image"`
	RecognizedText *string `json:"ocr_text"`
}

// NewAnswerRecord returns the empty record for question i.
func NewAnswerRecord(i int) AnswerRecord {
	return AnswerRecord{QuestionIndex: i}
}

// Set replaces a single field, leaving every other field untouched.
// Empty values clear the optional image and recognized text fields.
func (a *AnswerRecord) Set(field AnswerField, value string) {
	switch field {
	case FieldAnswerText:
		a.AnswerText = value
	case FieldSelectedOption:
		a.SelectedOption = value
	case FieldAttachedImage:
		a.AttachedImage = optional(value)
	case FieldRecognizedText:
		a.RecognizedText = optional(value)
	}
}

// IsEmpty reports whether nothing has been entered for the question.
func (a *AnswerRecord) IsEmpty() bool {
	return a.AnswerText == "" && a.SelectedOption == "" && a.AttachedImage == nil && a.RecognizedText == nil
}

// Clone returns a deep copy safe to hand outside the session.
func (a AnswerRecord) Clone() AnswerRecord {
	if a.AttachedImage != nil {
		v := *a.AttachedImage
		a.AttachedImage = &v
	}
	if a.RecognizedText != nil {
		v := *a.RecognizedText
		a.RecognizedText = &v
	}
	return a
}

// CloneAnswers deep-copies an answer collection.
func CloneAnswers(in []AnswerRecord) []AnswerRecord {
	out := make([]AnswerRecord, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
