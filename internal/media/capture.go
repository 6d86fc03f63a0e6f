package media

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	apperrors "github.com/stemsi/exstem-attempt/internal/errors"
	"github.com/stemsi/exstem-attempt/internal/observability"
)

// CaptureStatus enumerates the live-capture states.
type CaptureStatus string

const (
	CaptureIdle         CaptureStatus = "idle"
	CaptureCameraActive CaptureStatus = "camera_active"
	CaptureCaptured     CaptureStatus = "captured"
)

// CaptureState is the transient state of a capture for one question.
type CaptureState struct {
	Status        CaptureStatus `json:"status"`
	QuestionIndex int           `json:"question_index"`
	CameraActive  bool          `json:"camera_active"`
	PendingUpload bool          `json:"pending_upload"`
}

// Capture drives idle → camera_active → captured → idle over a Device.
// The device stream is stopped on every exit from camera_active.
type Capture struct {
	device Device
	log    zerolog.Logger

	mu     sync.Mutex
	status CaptureStatus
	index  int
	stream Stream
}

// NewCapture creates an idle capture over device.
func NewCapture(device Device, log zerolog.Logger) *Capture {
	return &Capture{
		device: device,
		log:    log.With().Str("component", "capture").Logger(),
		status: CaptureIdle,
	}
}

// Start opens the device for questionIndex. On failure the state stays idle
// and a DeviceError is returned.
func (c *Capture) Start(ctx context.Context, questionIndex int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CaptureIdle {
		return apperrors.ErrCaptureBusy
	}

	stream, err := c.device.Open(ctx)
	if err != nil {
		observability.CaptureExits().WithLabelValues("device_error").Inc()
		c.log.Warn().Err(err).Int("question_index", questionIndex).Msg("Capture device unavailable")
		return &apperrors.DeviceError{Err: err}
	}

	c.status = CaptureCameraActive
	c.index = questionIndex
	c.stream = stream
	c.log.Debug().Int("question_index", questionIndex).Msg("Camera active")
	return nil
}

// Snap freezes one frame and leaves camera_active for captured. The caller
// must call Finish once the frame has been taken through intake.
func (c *Capture) Snap(ctx context.Context) (int, []byte, error) {
	c.mu.Lock()
	if c.status != CaptureCameraActive {
		c.mu.Unlock()
		return 0, nil, apperrors.ErrCaptureInactive
	}
	stream := c.stream
	index := c.index
	c.mu.Unlock()

	frame, err := stream.Frame(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != stream {
		// Cancelled or released while waiting for the frame.
		return 0, nil, apperrors.ErrCaptureInactive
	}

	c.releaseLocked()
	if err != nil {
		c.status = CaptureIdle
		observability.CaptureExits().WithLabelValues("device_error").Inc()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return 0, nil, err
		}
		return 0, nil, &apperrors.DeviceError{Err: err}
	}

	c.status = CaptureCaptured
	observability.CaptureExits().WithLabelValues("captured").Inc()
	return index, frame, nil
}

// Finish returns a captured capture to idle after intake completes.
func (c *Capture) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == CaptureCaptured {
		c.status = CaptureIdle
	}
}

// Cancel releases the device from camera_active and returns to idle.
func (c *Capture) Cancel() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != CaptureCameraActive {
		return apperrors.ErrCaptureInactive
	}
	c.releaseLocked()
	c.status = CaptureIdle
	observability.CaptureExits().WithLabelValues("cancelled").Inc()
	return nil
}

// Release force-stops any open stream, for session teardown.
func (c *Capture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		observability.CaptureExits().WithLabelValues("teardown").Inc()
	}
	c.releaseLocked()
	c.status = CaptureIdle
}

// State returns the current capture state; ok is false when idle.
func (c *Capture) State() (CaptureState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == CaptureIdle {
		return CaptureState{Status: CaptureIdle}, false
	}
	return CaptureState{
		Status:        c.status,
		QuestionIndex: c.index,
		CameraActive:  c.status == CaptureCameraActive,
		PendingUpload: c.status == CaptureCaptured,
	}, true
}

func (c *Capture) releaseLocked() {
	if c.stream == nil {
		return
	}
	c.stream.Stop()
	c.stream = nil
	c.log.Debug().Int("question_index", c.index).Msg("Camera released")
}
