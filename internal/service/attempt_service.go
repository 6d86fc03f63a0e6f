package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/session"
)

// Attempt ownership errors.
var (
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrAttemptNotOwned  = errors.New("attempt belongs to another student")
	ErrAttemptSubmitted = errors.New("attempt already submitted")
)

// AttemptDeps are the collaborators shared by every attempt this process runs.
type AttemptDeps struct {
	Definitions session.DefinitionSource
	Submitter   session.Submitter
	Intaker     session.Intaker
	// Drafts and Journal are optional.
	Drafts   session.DraftStore
	Journal  session.Journal
	Registry *session.Registry
}

// OpenRequest identifies the attempt a connection wants to run.
type OpenRequest struct {
	TestID    string
	StudentID int
	Listener  session.Listener
	Device    media.Device
}

// AttemptService opens attempts, resuming drafts where they exist, and
// tracks them in the session registry.
type AttemptService struct {
	deps       AttemptDeps
	tickPeriod time.Duration
	log        zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(deps AttemptDeps, tickPeriod time.Duration, log zerolog.Logger) *AttemptService {
	return &AttemptService{
		deps:       deps,
		tickPeriod: tickPeriod,
		log:        log.With().Str("component", "attempt_service").Logger(),
	}
}

// Open builds and registers the session for req. Any older live session of
// the same student and test is closed first, so its latest draft is what gets
// resumed. The returned session is not started yet.
func (s *AttemptService) Open(ctx context.Context, req OpenRequest) (*session.Session, bool, error) {
	if n := s.deps.Registry.Evict(req.TestID, req.StudentID); n > 0 {
		s.log.Info().Str("test_id", req.TestID).Int("student_id", req.StudentID).Int("evicted", n).Msg("Replaced older connection")
	}

	def, err := session.Fetch(ctx, s.deps.Definitions, req.TestID)
	if err != nil {
		return nil, false, err
	}

	deps := session.Deps{
		Submitter: s.deps.Submitter,
		Intaker:   s.deps.Intaker,
		Device:    req.Device,
		Drafts:    s.deps.Drafts,
		Journal:   s.deps.Journal,
		Listener:  req.Listener,
		Log:       s.log,
	}
	opts := session.Options{StudentID: req.StudentID, TickPeriod: s.tickPeriod}

	sess, resumed, err := s.resumeOrCreate(ctx, def, deps, opts)
	if err != nil {
		return nil, false, err
	}

	s.deps.Registry.Add(sess)
	return sess, resumed, nil
}

func (s *AttemptService) resumeOrCreate(ctx context.Context, def *model.TestDefinition, deps session.Deps, opts session.Options) (*session.Session, bool, error) {
	if s.deps.Drafts == nil {
		sess, err := session.New(def, deps, opts)
		return sess, false, err
	}

	snap, err := s.deps.Drafts.Load(ctx, def.ID, opts.StudentID)
	if err != nil {
		// An unreadable draft is never overwritten.
		return nil, false, fmt.Errorf("load draft: %w", err)
	}
	if snap == nil {
		sess, err := session.New(def, deps, opts)
		return sess, false, err
	}
	if snap.State.Status == model.StatusSubmitted {
		return nil, false, ErrAttemptSubmitted
	}

	sess, err := session.Resume(def, snap, deps, opts)
	if err == nil {
		return sess, true, nil
	}

	var le *apperrors.LoadError
	if !errors.As(err, &le) {
		return nil, false, err
	}
	s.log.Warn().Err(err).
		Str("test_id", def.ID).
		Int("student_id", opts.StudentID).
		Msg("Discarding stale draft")
	if derr := s.deps.Drafts.Delete(ctx, def.ID, opts.StudentID); derr != nil {
		return nil, false, fmt.Errorf("discard draft: %w", derr)
	}
	sess, err = session.New(def, deps, opts)
	return sess, false, err
}

// Owned returns the live session attemptID if studentID runs it.
func (s *AttemptService) Owned(attemptID string, studentID int) (*session.Session, error) {
	sess, ok := s.deps.Registry.Get(attemptID)
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if sess.StudentID() != studentID {
		return nil, ErrAttemptNotOwned
	}
	return sess, nil
}

// Close tears sess down and unregisters it. A newer session that resumed the
// same attempt stays registered.
func (s *AttemptService) Close(sess *session.Session) {
	s.deps.Registry.Release(sess)
}

// Live returns the number of attempts running in this process.
func (s *AttemptService) Live() int {
	return s.deps.Registry.Len()
}

// Shutdown closes every live attempt. Their drafts stay behind for resume.
func (s *AttemptService) Shutdown() {
	s.deps.Registry.CloseAll()
}
