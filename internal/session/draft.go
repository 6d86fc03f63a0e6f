package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const draftWriteTimeout = 5 * time.Second

// DraftStore keeps the latest snapshot of an unfinished attempt so a student
// who loses the connection can pick it up again.
type DraftStore interface {
	Save(ctx context.Context, snap model.Snapshot) error
	// Load returns nil and no error when there is no draft.
	Load(ctx context.Context, testID string, studentID int) (*model.Snapshot, error)
	Delete(ctx context.Context, testID string, studentID int) error
}

// Resume rebuilds a session from a draft. Time spent disconnected counts
// against the attempt. A draft caught mid-delivery comes back as failed so
// that only an explicit retry can deliver it.
func Resume(def *model.TestDefinition, snap *model.Snapshot, deps Deps, opts Options) (*Session, error) {
	if def == nil || snap == nil {
		return nil, &apperrors.LoadError{Reason: "missing definition or draft"}
	}
	if snap.TestID != def.ID {
		return nil, &apperrors.LoadError{TestID: def.ID, Reason: fmt.Sprintf("draft belongs to test %s", snap.TestID)}
	}
	if snap.State.Status == model.StatusSubmitted {
		return nil, &apperrors.LoadError{TestID: def.ID, Reason: "attempt already submitted"}
	}
	if len(snap.Answers) != len(def.Questions) {
		return nil, &apperrors.LoadError{TestID: def.ID, Reason: "draft does not match test"}
	}
	for i, a := range snap.Answers {
		if a.QuestionIndex != i {
			return nil, &apperrors.LoadError{TestID: def.ID, Reason: "draft answers out of order"}
		}
	}

	remaining := snap.State.RemainingSeconds
	if !snap.SavedAt.IsZero() {
		remaining -= int(time.Since(snap.SavedAt) / time.Second)
	}
	if remaining < 0 {
		remaining = 0
	}

	opts.AttemptID = snap.AttemptID
	opts.StudentID = snap.StudentID

	s, err := build(def, deps, opts, remaining)
	if err != nil {
		return nil, err
	}

	s.answers = model.CloneAnswers(snap.Answers)
	s.state.CurrentIndex = snap.State.CurrentIndex
	if s.state.CurrentIndex < 0 || s.state.CurrentIndex >= len(s.answers) {
		s.state.CurrentIndex = 0
	}
	if snap.State.Status != model.StatusInProgress {
		s.state.Status = model.StatusFailed
	}

	s.log.Info().
		Int("remaining_seconds", remaining).
		Str("status", string(s.state.Status)).
		Msg("Resuming attempt from draft")

	s.launch()
	return s, nil
}

func (s *Session) saveDraft() {
	if s.drafts == nil || s.state.Status == model.StatusSubmitted {
		return
	}
	s.drafts.push(draftOp{snap: s.snapshot()})
}

func (s *Session) deleteDraft() {
	if s.drafts == nil {
		return
	}
	s.drafts.push(draftOp{snap: model.Snapshot{TestID: s.def.ID, StudentID: s.studentID}, remove: true})
}

type draftOp struct {
	snap   model.Snapshot
	remove bool
}

// draftWriter writes drafts in order from its own goroutine. Only the latest
// pending operation is kept.
type draftWriter struct {
	store DraftStore
	log   zerolog.Logger

	mu       sync.Mutex
	pending  *draftOp
	wake     chan struct{}
	quit     chan struct{}
	finished chan struct{}
}

func newDraftWriter(store DraftStore, log zerolog.Logger) *draftWriter {
	return &draftWriter{
		store:    store,
		log:      log,
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

func (w *draftWriter) push(op draftOp) {
	w.mu.Lock()
	w.pending = &op
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *draftWriter) run() {
	defer close(w.finished)
	for {
		select {
		case <-w.wake:
			w.flush()
		case <-w.quit:
			w.flush()
			return
		}
	}
}

func (w *draftWriter) flush() {
	w.mu.Lock()
	op := w.pending
	w.pending = nil
	w.mu.Unlock()
	if op == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), draftWriteTimeout)
	defer cancel()

	var err error
	if op.remove {
		err = w.store.Delete(ctx, op.snap.TestID, op.snap.StudentID)
	} else {
		err = w.store.Save(ctx, op.snap)
	}
	if err != nil {
		w.log.Error().Err(err).Bool("remove", op.remove).Msg("Draft write failed")
	}
}

// stop flushes the last pending operation and waits for the writer to exit.
func (w *draftWriter) stop() {
	close(w.quit)
	<-w.finished
}
