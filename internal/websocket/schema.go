package websocket

import (
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSetAnswer       Action = "set_answer"
	ActionNavigate        Action = "navigate"
	ActionSubmit          Action = "submit"
	ActionRetry           Action = "retry"
	ActionAttachImage     Action = "attach_image"
	ActionCameraAvailable Action = "camera_available"
	ActionStartCapture    Action = "start_capture"
	ActionFrame           Action = "frame"
	ActionCapture         Action = "capture"
	ActionCancelCapture   Action = "cancel_capture"
	ActionPing            Action = "ping"
)

// RequestPayload carries every client action; each action reads only the
// fields it needs. Index is a pointer so that question 0 is distinguishable
// from a missing index.
type RequestPayload struct {
	Action Action `json:"action"`
	Index  *int   `json:"index,omitempty"`
	Field  string `json:"field,omitempty"`
	Value  string `json:"value,omitempty"`
	Delta  int    `json:"delta,omitempty"`
	// Data is a base64 image or camera frame, optionally as a data URL.
	Data      string `json:"data,omitempty"`
	Available bool   `json:"available,omitempty"`
	Denied    bool   `json:"denied,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventLoaded        Event = "loaded"
	EventAnswerChanged Event = "answer_changed"
	EventNavigated     Event = "navigated"
	EventTimeTick      Event = "time_tick"
	EventSubmitting    Event = "submitting"
	EventSubmitted     Event = "submitted"
	EventSubmitFailed  Event = "submit_failed"
	EventNotice        Event = "notice"
	EventCaptureState  Event = "capture_state"
	EventCameraStopped Event = "camera_stopped"
	EventError         Event = "error"
	EventPong          Event = "pong"
)

// Message is the envelope of every server event.
type Message struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type LoadedData struct {
	AttemptID string                `json:"attempt_id"`
	Resumed   bool                  `json:"resumed"`
	Test      *model.TestDefinition `json:"test"`
	State     model.SessionState    `json:"state"`
	Answers   []model.AnswerRecord  `json:"answers"`
}

type AnswerChangedData struct {
	QuestionIndex int                `json:"question_index"`
	Answer        model.AnswerRecord `json:"answer"`
}

type SubmittingData struct {
	Trigger model.SubmitTrigger `json:"trigger"`
}

type NavigatedData struct {
	CurrentIndex int `json:"current_index"`
}

type TimeTickData struct {
	RemainingSeconds int `json:"remaining_seconds"`
}

type SubmittedData struct {
	ResultID string `json:"result_id"`
}

type CaptureStateData struct {
	Active bool `json:"active"`
	media.CaptureState
}

// ErrorData describes failures in error, notice and submit_failed events.
type ErrorData struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Action    Action            `json:"action,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
}
