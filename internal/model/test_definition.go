package model

import (
	"encoding/json"
	"strings"
)

// QuestionType enumerates the answer shapes a question accepts.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeFillBlank      QuestionType = "fill_blank"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeLongAnswer     QuestionType = "long_answer"
)

// questionTypeAliases maps the test service's legacy type names onto ours.
var questionTypeAliases = map[string]QuestionType{
	"mcq":             QuestionTypeMultipleChoice,
	"multiple_choice": QuestionTypeMultipleChoice,
	"fill_blank":      QuestionTypeFillBlank,
	"short":           QuestionTypeShortAnswer,
	"short_answer":    QuestionTypeShortAnswer,
	"long":            QuestionTypeLongAnswer,
	"long_answer":     QuestionTypeLongAnswer,
}

// ParseQuestionType normalizes a wire type name. ok is false for unknown names.
func ParseQuestionType(raw string) (QuestionType, bool) {
	t, ok := questionTypeAliases[strings.ToLower(strings.TrimSpace(raw))]
	return t, ok
}

// UnmarshalJSON accepts both the canonical and the legacy names.
func (t *QuestionType) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if parsed, ok := ParseQuestionType(raw); ok {
		*t = parsed
		return nil
	}
	// Keep the unknown value so validation can report it.
	*t = QuestionType(raw)
	return nil
}

// AcceptsMedia reports whether handwritten image answers are offered for this type.
func (t QuestionType) AcceptsMedia() bool {
	return t == QuestionTypeShortAnswer || t == QuestionTypeLongAnswer
}

// Question is one immutable item of a test.
type Question struct {
	Index   int          `json:"index"`
	Text    string       `json:"question_text" validate:"required"`
	Type    QuestionType `json:"question_type" validate:"required,oneof=multiple_choice fill_blank short_answer long_answer"`
	Options []string     `json:"options,omitempty" validate:"omitempty,dive,required"`
	Marks   int          `json:"marks" validate:"min=1"`
}

// HasOption reports whether value is one of the question's options.
func (q *Question) HasOption(value string) bool {
	for _, o := range q.Options {
		if o == value {
			return true
		}
	}
	return false
}

// TestDefinition is the test as served by the test definition service.
// It is loaded once per attempt and never mutated afterwards.
type TestDefinition struct {
	ID              string     `json:"id" validate:"required"`
	Title           string     `json:"title"`
	Questions       []Question `json:"questions" validate:"required,min=1,dive"`
	DurationMinutes int        `json:"duration_minutes" validate:"min=1"`
	TotalMarks      int        `json:"total_marks" validate:"min=0"`
}

// DurationSeconds is the full attempt time budget.
func (d *TestDefinition) DurationSeconds() int {
	return d.DurationMinutes * 60
}

// Reindex stamps every question with its position in the definition.
func (d *TestDefinition) Reindex() {
	for i := range d.Questions {
		d.Questions[i].Index = i
	}
}
