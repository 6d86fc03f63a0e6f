// Package session runs one student's attempt at a test from load to
// submission. All state changes of a Session happen on its own event loop,
// one operation at a time; timer ticks, recognition results and delivery
// outcomes are posted to that loop as they arrive.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/countdown"
	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/observability"
	"github.com/stemsi/exstem-attempt/internal/validator"
)

var errAlreadyStarted = errors.New("session already started")

// DefinitionSource loads test definitions.
type DefinitionSource interface {
	GetTest(ctx context.Context, testID string) (*model.TestDefinition, error)
}

// Submitter delivers a finished answer collection.
type Submitter interface {
	Submit(ctx context.Context, testID string, answers []model.AnswerRecord) (model.SubmissionResult, error)
}

// Intaker turns raw image bytes into an answer patch.
type Intaker interface {
	Intake(ctx context.Context, questionIndex int, data []byte) (*media.Patch, error)
}

// Journal records every delivery an attempt makes.
type Journal interface {
	RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error
}

// Deps are the collaborators of a Session. Submitter is required; the rest
// are optional.
type Deps struct {
	Submitter Submitter
	Intaker   Intaker
	Device    media.Device
	Drafts    DraftStore
	Journal   Journal
	Listener  Listener
	Log       zerolog.Logger
}

// Options identify the attempt and tune its timer.
type Options struct {
	// AttemptID is generated when empty.
	AttemptID string
	StudentID int
	// DurationSeconds overrides the definition's duration when positive.
	DurationSeconds int
	TickPeriod      time.Duration
	NewTicker       countdown.TickerFunc
}

// Session owns one in-progress attempt.
type Session struct {
	id        string
	studentID int
	def       *model.TestDefinition
	deps      Deps
	listener  Listener
	log       zerolog.Logger

	// Owned by the event loop.
	answers    []model.AnswerRecord
	state      model.SessionState
	started    bool
	closed     bool
	deliveries int
	taskCtx    context.Context
	timer      *countdown.Countdown
	capture    *media.Capture

	ctx       context.Context
	cancel    context.CancelFunc
	ops       chan func()
	done      chan struct{}
	exited    chan struct{}
	released  chan struct{}
	closeOnce sync.Once
	drafts    *draftWriter
}

// Load fetches the definition of testID and builds a session for it.
func Load(ctx context.Context, source DefinitionSource, testID string, deps Deps, opts Options) (*Session, error) {
	def, err := Fetch(ctx, source, testID)
	if err != nil {
		return nil, err
	}
	return New(def, deps, opts)
}

// Fetch loads the definition of testID. Every failure is a *errors.LoadError.
func Fetch(ctx context.Context, source DefinitionSource, testID string) (*model.TestDefinition, error) {
	def, err := source.GetTest(ctx, testID)
	if err != nil {
		reason := "fetch failed"
		var nf *apperrors.NotFoundError
		if errors.As(err, &nf) {
			reason = "test not found"
		}
		return nil, &apperrors.LoadError{TestID: testID, Reason: reason, Err: err}
	}
	return def, nil
}

// New builds a session with one empty answer per question. The timer does
// not run until Start.
func New(def *model.TestDefinition, deps Deps, opts Options) (*Session, error) {
	if def == nil {
		return nil, &apperrors.LoadError{Reason: "missing definition"}
	}
	remaining := def.DurationSeconds()
	if opts.DurationSeconds > 0 {
		remaining = opts.DurationSeconds
	}
	s, err := build(def, deps, opts, remaining)
	if err != nil {
		return nil, err
	}
	s.launch()
	return s, nil
}

func build(def *model.TestDefinition, deps Deps, opts Options, remaining int) (*Session, error) {
	if deps.Submitter == nil {
		return nil, fmt.Errorf("build session: submitter is required")
	}

	test, err := prepareDefinition(def, remaining)
	if err != nil {
		return nil, err
	}

	if opts.AttemptID == "" {
		opts.AttemptID = uuid.NewString()
	}
	if deps.Listener == nil {
		deps.Listener = NopListener{}
	}

	log := deps.Log.With().
		Str("component", "session").
		Str("attempt_id", opts.AttemptID).
		Str("test_id", test.ID).
		Int("student_id", opts.StudentID).
		Logger()

	if deps.Intaker == nil {
		deps.Intaker = media.NewAcquirer(nil, media.ImageOptions{}, log)
	}

	answers := make([]model.AnswerRecord, len(test.Questions))
	for i := range answers {
		answers[i] = model.NewAnswerRecord(i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        opts.AttemptID,
		studentID: opts.StudentID,
		def:       test,
		deps:      deps,
		listener:  deps.Listener,
		log:       log,
		answers:   answers,
		state: model.SessionState{
			CurrentIndex:     0,
			RemainingSeconds: remaining,
			Status:           model.StatusInProgress,
		},
		taskCtx: context.Background(),
		timer: countdown.New(remaining, countdown.Options{
			Period:    opts.TickPeriod,
			NewTicker: opts.NewTicker,
		}),
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(chan func()),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
		released: make(chan struct{}),
	}
	if deps.Device != nil {
		s.capture = media.NewCapture(deps.Device, log)
	}
	if deps.Drafts != nil {
		s.drafts = newDraftWriter(deps.Drafts, log)
	}
	return s, nil
}

// prepareDefinition validates def and returns an indexed private copy.
func prepareDefinition(def *model.TestDefinition, remaining int) (*model.TestDefinition, error) {
	if len(def.Questions) == 0 {
		return nil, &apperrors.LoadError{TestID: def.ID, Reason: "test has no questions"}
	}
	if def.DurationMinutes <= 0 || remaining < 0 {
		return nil, &apperrors.LoadError{TestID: def.ID, Reason: "duration must be positive"}
	}
	if err := validator.Struct(def); err != nil {
		return nil, &apperrors.LoadError{
			TestID: def.ID,
			Reason: "invalid definition",
			Err:    &apperrors.ValidationError{Fields: validator.TranslateErrors(err)},
		}
	}
	for i, q := range def.Questions {
		if q.Type == model.QuestionTypeMultipleChoice && len(q.Options) == 0 {
			return nil, &apperrors.LoadError{
				TestID: def.ID,
				Reason: fmt.Sprintf("question %d is multiple choice without options", i),
			}
		}
	}

	test := *def
	test.Questions = append([]model.Question(nil), def.Questions...)
	test.Reindex()
	return &test, nil
}

func (s *Session) launch() {
	go s.run()
	if s.drafts != nil {
		go s.drafts.run()
	}
}

// ID returns the attempt identifier.
func (s *Session) ID() string { return s.id }

// TestID returns the identifier of the test being taken.
func (s *Session) TestID() string { return s.def.ID }

// StudentID returns the student who owns the attempt.
func (s *Session) StudentID() int { return s.studentID }

// Definition returns the immutable test definition.
func (s *Session) Definition() *model.TestDefinition { return s.def }

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start announces the loaded attempt and starts the countdown. ctx supplies
// request-scoped values such as the student's token to the network tasks the
// session runs; cancelling it does not end the session.
func (s *Session) Start(ctx context.Context) error {
	return s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if s.started {
			return errAlreadyStarted
		}
		s.started = true
		s.taskCtx = context.WithoutCancel(ctx)
		observability.ActiveSessions().Inc()

		s.log.Info().
			Int("questions", len(s.answers)).
			Int("remaining_seconds", s.state.RemainingSeconds).
			Str("status", string(s.state.Status)).
			Msg("Session started")

		s.listener.OnLoaded(s.view())
		s.saveDraft()

		if s.state.Status != model.StatusInProgress {
			return nil
		}
		return s.timer.Start(s.ctx, s.onTick, s.onExpire)
	})
}

// Close tears the session down: the countdown stops, any camera stream is
// released and results of in-flight network tasks are dropped. It is
// idempotent and must not be called from a Listener callback.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		_ = s.call(s.teardown)
		close(s.done)
		<-s.exited
		if s.drafts != nil {
			s.drafts.stop()
		}
		close(s.released)
	})
}

func (s *Session) teardown() {
	s.closed = true
	s.cancel()
	s.timer.Stop()
	if s.capture != nil {
		s.capture.Release()
	}
	if s.started {
		observability.ActiveSessions().Dec()
	}
	s.log.Info().Str("status", string(s.state.Status)).Msg("Session closed")
}

// State returns the current navigation, timing and submission state.
func (s *Session) State() model.SessionState {
	var st model.SessionState
	s.read(func() { st = s.state })
	return st
}

// Answers returns a copy of the answer collection in question order.
func (s *Session) Answers() []model.AnswerRecord {
	var out []model.AnswerRecord
	s.read(func() { out = model.CloneAnswers(s.answers) })
	return out
}

// Snapshot returns a copy of the whole attempt.
func (s *Session) Snapshot() model.Snapshot {
	var snap model.Snapshot
	s.read(func() { snap = s.snapshot() })
	return snap
}

// ─── Event loop ─────────────────────────────────────────────────────

func (s *Session) run() {
	defer close(s.exited)
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.done:
			return
		}
	}
}

// call runs fn on the event loop and waits for it to finish.
func (s *Session) call(fn func()) error {
	reply := make(chan struct{})
	select {
	case s.ops <- func() { defer close(reply); fn() }:
	case <-s.done:
		return apperrors.ErrSessionClosed
	}
	<-reply
	return nil
}

// do runs fn on the event loop and returns its error.
func (s *Session) do(fn func() error) error {
	var err error
	if cerr := s.call(func() { err = fn() }); cerr != nil {
		return cerr
	}
	return err
}

// read runs fn on the loop, or directly once the loop has exited.
func (s *Session) read(fn func()) {
	if err := s.call(fn); err != nil {
		<-s.exited
		fn()
	}
}

// post queues fn without waiting. It reports false when the session is
// already closed and fn will never run. It must not be used from the loop.
func (s *Session) post(fn func()) bool {
	select {
	case s.ops <- fn:
		return true
	case <-s.done:
		return false
	}
}

// ─── Countdown callbacks ────────────────────────────────────────────

func (s *Session) onTick(remaining int) {
	s.post(func() {
		if s.closed || s.state.Status != model.StatusInProgress {
			return
		}
		s.state.RemainingSeconds = remaining
		s.listener.OnTimeTick(remaining)
	})
}

func (s *Session) onExpire() {
	s.post(func() { s.expire() })
}

// ─── Helpers (loop only) ────────────────────────────────────────────

func (s *Session) checkIndex(i int) error {
	if i < 0 || i >= len(s.answers) {
		return &apperrors.IndexError{Index: i, Count: len(s.answers)}
	}
	return nil
}

func (s *Session) view() View {
	return View{
		AttemptID: s.id,
		Test:      s.def,
		State:     s.state,
		Answers:   model.CloneAnswers(s.answers),
	}
}

func (s *Session) snapshot() model.Snapshot {
	return model.Snapshot{
		AttemptID: s.id,
		TestID:    s.def.ID,
		StudentID: s.studentID,
		State:     s.state,
		Answers:   model.CloneAnswers(s.answers),
		SavedAt:   time.Now(),
	}
}

func (s *Session) changed(i int) {
	s.listener.OnAnswerChanged(i, s.answers[i].Clone())
	s.saveDraft()
}
