package session

import (
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// View is what the shell needs to render a freshly loaded attempt.
type View struct {
	AttemptID string                `json:"attempt_id"`
	Test      *model.TestDefinition `json:"test"`
	State     model.SessionState    `json:"state"`
	Answers   []model.AnswerRecord  `json:"answers"`
}

// Listener receives session lifecycle events. Callbacks run on the session's
// event loop one at a time; they must return quickly and must not call back
// into the session synchronously.
type Listener interface {
	OnLoaded(view View)
	OnAnswerChanged(index int, record model.AnswerRecord)
	OnTimeTick(remaining int)
	// OnSubmitting fires when a delivery starts, whatever triggered it.
	OnSubmitting(trigger model.SubmitTrigger)
	OnSubmitted(resultID string)
	OnSubmitFailed(err error)
	// OnNotice carries recoverable device and recognition failures.
	OnNotice(err error)
	OnCaptureState(state media.CaptureState)
}

// NopListener ignores every event. Embed it to implement only some callbacks.
type NopListener struct{}

func (NopListener) OnLoaded(View)                           {}
func (NopListener) OnAnswerChanged(int, model.AnswerRecord) {}
func (NopListener) OnTimeTick(int)                          {}
func (NopListener) OnSubmitting(model.SubmitTrigger)        {}
func (NopListener) OnSubmitted(string)                      {}
func (NopListener) OnSubmitFailed(error)                    {}
func (NopListener) OnNotice(error)                          {}
func (NopListener) OnCaptureState(media.CaptureState)       {}
