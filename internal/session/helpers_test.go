package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-attempt/internal/countdown"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const waitFor = 2 * time.Second

// ─── Definitions ────────────────────────────────────────────────────

func threeQuestionTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:              "t-1",
		Title:           "Science",
		DurationMinutes: 1,
		TotalMarks:      4,
		Questions: []model.Question{
			{Text: "Which?", Type: model.QuestionTypeMultipleChoice, Options: []string{"A", "B"}, Marks: 1},
			{Text: "Name the animal", Type: model.QuestionTypeShortAnswer, Marks: 1},
			{Text: "Explain", Type: model.QuestionTypeLongAnswer, Marks: 2},
		},
	}
}

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeSubmitter struct {
	mu       sync.Mutex
	calls    int
	payloads [][]model.AnswerRecord
	errs     []error
	gate     chan struct{}
}

func (f *fakeSubmitter) Submit(ctx context.Context, testID string, answers []model.AnswerRecord) (model.SubmissionResult, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.payloads = append(f.payloads, answers)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return model.SubmissionResult{}, err
		}
	}
	return model.SubmissionResult{ResultID: "res-1"}, nil
}

func (f *fakeSubmitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSubmitter) Payload(i int) []model.AnswerRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[i]
}

type fakeIntaker struct {
	text string
	err  error
	gate chan struct{}
	done chan struct{}
}

func (f *fakeIntaker) Intake(ctx context.Context, i int, data []byte) (*media.Patch, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.done != nil {
		defer close(f.done)
	}
	patch := &media.Patch{QuestionIndex: i, EncodedImage: "img:" + string(data)}
	if f.err != nil {
		return patch, f.err
	}
	text := f.text
	patch.RecognizedText = &text
	return patch, nil
}

type recorder struct {
	mu        sync.Mutex
	loaded    int
	changed   []int
	ticks     []int
	starts    []model.SubmitTrigger
	submitted []string
	failed    []error
	notices   []error
	captures  []media.CaptureState
}

func (r *recorder) OnLoaded(View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded++
}

func (r *recorder) OnAnswerChanged(i int, _ model.AnswerRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, i)
}

func (r *recorder) OnTimeTick(remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, remaining)
}

func (r *recorder) OnSubmitting(trigger model.SubmitTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, trigger)
}

func (r *recorder) Starts() []model.SubmitTrigger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SubmitTrigger(nil), r.starts...)
}

func (r *recorder) OnSubmitted(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, id)
}

func (r *recorder) OnSubmitFailed(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, err)
}

func (r *recorder) OnNotice(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, err)
}

func (r *recorder) OnCaptureState(st media.CaptureState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.captures = append(r.captures, st)
}

func (r *recorder) Submitted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.submitted...)
}

func (r *recorder) Failed() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.failed...)
}

func (r *recorder) Notices() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.notices...)
}

func (r *recorder) Ticks() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.ticks...)
}

func (r *recorder) LastCapture() (media.CaptureState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.captures) == 0 {
		return media.CaptureState{}, false
	}
	return r.captures[len(r.captures)-1], true
}

type memoryDrafts struct {
	mu      sync.Mutex
	saved   map[string]model.Snapshot
	deletes int
}

func newMemoryDrafts() *memoryDrafts {
	return &memoryDrafts{saved: make(map[string]model.Snapshot)}
}

func draftKey(testID string, studentID int) string {
	return fmt.Sprintf("%s/%d", testID, studentID)
}

func (m *memoryDrafts) Save(ctx context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[draftKey(snap.TestID, snap.StudentID)] = snap
	return nil
}

func (m *memoryDrafts) Load(ctx context.Context, testID string, studentID int) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.saved[draftKey(testID, studentID)]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memoryDrafts) Delete(ctx context.Context, testID string, studentID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, draftKey(testID, studentID))
	m.deletes++
	return nil
}

func (m *memoryDrafts) Deletes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deletes
}

type journalRecorder struct {
	mu      sync.Mutex
	records []model.DeliveryRecord
}

func (j *journalRecorder) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, rec)
	return nil
}

func (j *journalRecorder) Records() []model.DeliveryRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]model.DeliveryRecord(nil), j.records...)
}

type fakeStream struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeStream) Frame(ctx context.Context) ([]byte, error) { return []byte("frame"), nil }

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped++
}

func (s *fakeStream) Stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeDevice struct {
	stream *fakeStream
	err    error
}

func (d *fakeDevice) Open(ctx context.Context) (media.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.stream, nil
}

// ─── Harness ────────────────────────────────────────────────────────

type harness struct {
	session   *Session
	ticks     chan time.Time
	submitter *fakeSubmitter
	listener  *recorder
}

func manualTicker(ch chan time.Time) countdown.TickerFunc {
	return func(time.Duration) (<-chan time.Time, func()) {
		return ch, func() {}
	}
}

// newHarness builds and starts a session driven by a manual tick channel.
func newHarness(t *testing.T, def *model.TestDefinition, deps Deps, opts Options) *harness {
	t.Helper()

	h := &harness{ticks: make(chan time.Time), listener: &recorder{}}
	if deps.Submitter == nil {
		h.submitter = &fakeSubmitter{}
		deps.Submitter = h.submitter
	} else if fs, ok := deps.Submitter.(*fakeSubmitter); ok {
		h.submitter = fs
	}
	deps.Listener = h.listener
	deps.Log = zerolog.Nop()
	opts.NewTicker = manualTicker(h.ticks)

	s, err := New(def, deps, opts)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Close)

	h.session = s
	return h
}

func (h *harness) tick(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case h.ticks <- time.Now():
		case <-time.After(waitFor):
			t.Fatalf("countdown did not accept tick %d", i+1)
		}
	}
}

func (h *harness) waitStatus(t *testing.T, want model.SubmissionStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.session.State().Status == want
	}, waitFor, 5*time.Millisecond, "status never became %s", want)
}
