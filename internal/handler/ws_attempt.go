package handler

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/response"
	"github.com/stemsi/exstem-attempt/internal/service"
	"github.com/stemsi/exstem-attempt/internal/session"
	ws "github.com/stemsi/exstem-attempt/internal/websocket"
)

const outboxSize = 64

// outbox serializes writes to one connection from a single goroutine.
// Sends after close are dropped.
type outbox struct {
	conn *websocket.Conn
	log  zerolog.Logger
	ch   chan ws.Message
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newOutbox(conn *websocket.Conn, log zerolog.Logger) *outbox {
	o := &outbox{
		conn: conn,
		log:  log,
		ch:   make(chan ws.Message, outboxSize),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *outbox) send(event ws.Event, data interface{}) {
	select {
	case <-o.stop:
		return
	default:
	}
	select {
	case o.ch <- ws.Message{Event: event, Data: data}:
	case <-o.stop:
	}
}

func (o *outbox) run() {
	defer close(o.done)
	for {
		select {
		case msg := <-o.ch:
			if err := ws.WriteTyped(o.conn, msg); err != nil {
				o.log.Debug().Err(err).Str("event", string(msg.Event)).Msg("Write failed")
				o.once.Do(func() { close(o.stop) })
				return
			}
		case <-o.stop:
			o.flush()
			return
		}
	}
}

// flush writes whatever is already queued.
func (o *outbox) flush() {
	for {
		select {
		case msg := <-o.ch:
			if err := ws.WriteTyped(o.conn, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (o *outbox) close() {
	o.once.Do(func() { close(o.stop) })
	<-o.done
}

// connListener turns session events into WebSocket messages.
type connListener struct {
	out     *outbox
	resumed bool
}

func (l *connListener) OnLoaded(view session.View) {
	l.out.send(ws.EventLoaded, ws.LoadedData{
		AttemptID: view.AttemptID,
		Resumed:   l.resumed,
		Test:      view.Test,
		State:     view.State,
		Answers:   view.Answers,
	})
}

func (l *connListener) OnAnswerChanged(index int, record model.AnswerRecord) {
	l.out.send(ws.EventAnswerChanged, ws.AnswerChangedData{QuestionIndex: index, Answer: record})
}

func (l *connListener) OnTimeTick(remaining int) {
	l.out.send(ws.EventTimeTick, ws.TimeTickData{RemainingSeconds: remaining})
}

func (l *connListener) OnSubmitting(trigger model.SubmitTrigger) {
	l.out.send(ws.EventSubmitting, ws.SubmittingData{Trigger: trigger})
}

func (l *connListener) OnSubmitted(resultID string) {
	l.out.send(ws.EventSubmitted, ws.SubmittedData{ResultID: resultID})
}

func (l *connListener) OnSubmitFailed(err error) {
	data := errorData("", err)
	data.Retryable = true
	l.out.send(ws.EventSubmitFailed, data)
}

func (l *connListener) OnNotice(err error) {
	l.out.send(ws.EventNotice, errorData("", err))
}

func (l *connListener) OnCaptureState(state media.CaptureState) {
	l.out.send(ws.EventCaptureState, ws.CaptureStateData{
		Active:       state.Status != media.CaptureIdle,
		CaptureState: state,
	})
}

// attemptConn applies client actions to the connection's session.
type attemptConn struct {
	sess   *session.Session
	camera *media.ShellCamera
	out    *outbox
	ctx    context.Context
	log    zerolog.Logger
}

var errIndexRequired = &payloadError{errors.New("index is required")}

func (a *attemptConn) dispatch(msg *ws.RequestPayload) {
	var err error
	switch msg.Action {
	case ws.ActionSetAnswer:
		err = a.setAnswer(msg)
	case ws.ActionNavigate:
		var index int
		if index, err = a.sess.Navigate(msg.Delta); err == nil {
			a.out.send(ws.EventNavigated, ws.NavigatedData{CurrentIndex: index})
		}
	case ws.ActionSubmit:
		_, err = a.sess.SubmitManually()
	case ws.ActionRetry:
		err = a.sess.Retry()
	case ws.ActionAttachImage:
		err = a.attachImage(msg)
	case ws.ActionCameraAvailable:
		a.camera.SetAvailable(msg.Available, msg.Denied)
	case ws.ActionStartCapture:
		if msg.Index == nil {
			err = errIndexRequired
			break
		}
		err = a.sess.StartCapture(a.ctx, *msg.Index)
	case ws.ActionFrame:
		frame, derr := ws.DecodeData(msg.Data)
		if derr != nil {
			err = &payloadError{derr}
			break
		}
		a.camera.PushFrame(frame)
	case ws.ActionCapture:
		err = a.sess.CaptureFrame(a.ctx)
	case ws.ActionCancelCapture:
		err = a.sess.CancelCapture()
	case ws.ActionPing:
		a.out.send(ws.EventPong, nil)
	default:
		a.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		a.out.send(ws.EventError, ws.ErrorData{
			Code:    string(response.ErrUnknownAction),
			Message: response.GetMessage(response.ErrUnknownAction),
			Action:  msg.Action,
		})
		return
	}

	if err != nil {
		a.log.Debug().Err(err).Str("action", string(msg.Action)).Msg("Action rejected")
		a.out.send(ws.EventError, errorData(msg.Action, err))
	}
}

func (a *attemptConn) setAnswer(msg *ws.RequestPayload) error {
	if msg.Index == nil {
		return errIndexRequired
	}
	field, err := model.ParseAnswerField(msg.Field)
	if err != nil {
		return &payloadError{err}
	}
	return a.sess.SetAnswerField(*msg.Index, field, msg.Value)
}

func (a *attemptConn) attachImage(msg *ws.RequestPayload) error {
	if msg.Index == nil {
		return errIndexRequired
	}
	data, err := ws.DecodeData(msg.Data)
	if err != nil {
		return &payloadError{err}
	}
	return a.sess.AttachImage(a.ctx, *msg.Index, data)
}

// payloadError marks a malformed client message.
type payloadError struct{ err error }

func (e *payloadError) Error() string { return e.err.Error() }
func (e *payloadError) Unwrap() error { return e.err }

// errorData describes err with the same codes the HTTP API uses.
func errorData(action ws.Action, err error) ws.ErrorData {
	_, code, fields := response.Classify(err)
	var pe *payloadError
	switch {
	case errors.As(err, &pe):
		code = response.ErrInvalidPayload
	case errors.Is(err, service.ErrAttemptSubmitted):
		code = response.ErrAlreadySubmitted
	}
	return ws.ErrorData{
		Code:    string(code),
		Message: response.GetMessage(code),
		Action:  action,
		Fields:  fields,
	}
}
