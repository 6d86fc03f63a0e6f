package session

import (
	"context"
	"errors"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/media"
	"github.com/stemsi/exstem-attempt/internal/model"
	"github.com/stemsi/exstem-attempt/internal/recognition"
)

// AttachImage takes an image file for question i. Normalization and
// recognition run in the background; the result is merged when it arrives
// and failures are reported through OnNotice.
func (s *Session) AttachImage(ctx context.Context, i int, data []byte) error {
	if err := s.do(func() error { return s.acceptsImage(i) }); err != nil {
		return err
	}
	go s.runIntake(context.WithoutCancel(ctx), i, data, nil)
	return nil
}

// StartCapture opens the camera for question i.
func (s *Session) StartCapture(ctx context.Context, i int) error {
	return s.do(func() error {
		if s.capture == nil {
			err := &apperrors.DeviceError{Err: media.ErrNoCamera}
			s.listener.OnNotice(err)
			return err
		}
		if err := s.acceptsImage(i); err != nil {
			return err
		}
		if err := s.capture.Start(ctx, i); err != nil {
			var de *apperrors.DeviceError
			if errors.As(err, &de) {
				s.listener.OnNotice(err)
			}
			return err
		}
		s.emitCapture()
		return nil
	})
}

// CaptureFrame freezes the current camera frame and sends it through the
// same intake as AttachImage. The camera is released before intake starts.
func (s *Session) CaptureFrame(ctx context.Context) error {
	err := s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if s.capture == nil {
			return apperrors.ErrCaptureInactive
		}
		if st, ok := s.capture.State(); !ok || st.Status != media.CaptureCameraActive {
			return apperrors.ErrCaptureInactive
		}
		if s.state.Status != model.StatusInProgress {
			return apperrors.ErrSessionClosed
		}
		return nil
	})
	if err != nil {
		return err
	}

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		index, frame, err := s.capture.Snap(s.ctx)
		if err != nil {
			s.post(func() {
				if s.closed {
					return
				}
				if !errors.Is(err, apperrors.ErrCaptureInactive) {
					s.listener.OnNotice(err)
				}
				s.emitCapture()
			})
			return
		}
		s.post(func() {
			if !s.closed {
				s.emitCapture()
			}
		})
		s.runIntake(taskCtx, index, frame, func() {
			s.capture.Finish()
			s.emitCapture()
		})
	}()
	return nil
}

// CancelCapture turns the camera off without taking a picture.
func (s *Session) CancelCapture() error {
	return s.do(func() error {
		if s.closed {
			return apperrors.ErrSessionClosed
		}
		if s.capture == nil {
			return apperrors.ErrCaptureInactive
		}
		if err := s.capture.Cancel(); err != nil {
			return err
		}
		s.emitCapture()
		return nil
	})
}

// CaptureState returns the live-capture state; ok is false when no capture
// is in progress.
func (s *Session) CaptureState() (media.CaptureState, bool) {
	if s.capture == nil {
		return media.CaptureState{Status: media.CaptureIdle}, false
	}
	return s.capture.State()
}

// acceptsImage runs on the loop.
func (s *Session) acceptsImage(i int) error {
	if s.closed {
		return apperrors.ErrSessionClosed
	}
	if err := s.checkIndex(i); err != nil {
		return err
	}
	if s.state.Status != model.StatusInProgress {
		return apperrors.ErrSessionClosed
	}
	if !s.def.Questions[i].Type.AcceptsMedia() {
		return apperrors.ErrMediaNotAccepted
	}
	return nil
}

// runIntake blocks on the network and posts the outcome to the loop. after,
// if set, runs on the loop once the outcome has been applied.
func (s *Session) runIntake(ctx context.Context, i int, data []byte, after func()) {
	patch, err := s.deps.Intaker.Intake(ctx, i, data)

	posted := s.post(func() {
		s.applyIntake(patch, err)
		if after != nil && !s.closed {
			after()
		}
	})
	if !posted && patch != nil {
		s.dropMerge("closed", i)
	}
}

func (s *Session) applyIntake(patch *media.Patch, err error) {
	if s.closed {
		if patch != nil {
			s.dropMerge("closed", patch.QuestionIndex)
		}
		return
	}
	if patch != nil && !s.merge(patch) {
		return
	}
	if err != nil && !errors.Is(err, recognition.ErrDisabled) {
		s.listener.OnNotice(err)
	}
}

func (s *Session) emitCapture() {
	if s.capture == nil {
		return
	}
	st, _ := s.capture.State()
	s.listener.OnCaptureState(st)
}
