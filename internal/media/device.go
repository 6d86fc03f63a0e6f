package media

import (
	"context"
	"errors"
	"sync"
)

// Device errors.
var (
	ErrNoCamera      = errors.New("no camera available")
	ErrCameraDenied  = errors.New("camera access denied")
	ErrStreamBusy    = errors.New("camera stream already open")
	ErrStreamStopped = errors.New("camera stream stopped")
)

// Device is a capture device such as a camera.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open device stream. Stop releases the hardware and is idempotent.
type Stream interface {
	Frame(ctx context.Context) ([]byte, error)
	Stop()
}

// ShellCamera is the student's camera as exposed by the UI shell: the shell
// declares whether a camera exists and, while a stream is open, pushes frames.
type ShellCamera struct {
	mu        sync.Mutex
	available bool
	denied    bool
	stream    *shellStream
	onRelease func()
}

// NewShellCamera creates a camera with no device declared yet. onRelease, if
// set, is called whenever an open stream is stopped so the shell can turn its
// camera off.
func NewShellCamera(onRelease func()) *ShellCamera {
	return &ShellCamera{onRelease: onRelease}
}

// SetAvailable records the shell's report about camera presence and permission.
func (c *ShellCamera) SetAvailable(available, denied bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = available
	c.denied = denied
}

// Open starts a stream. Only one stream may be open at a time.
func (c *ShellCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.denied:
		return nil, ErrCameraDenied
	case !c.available:
		return nil, ErrNoCamera
	case c.stream != nil:
		return nil, ErrStreamBusy
	}

	c.stream = &shellStream{camera: c, ready: make(chan struct{}), stopped: make(chan struct{})}
	return c.stream, nil
}

// PushFrame hands the latest frame to the open stream. Frames arriving with no
// stream open are discarded.
func (c *ShellCamera) PushFrame(frame []byte) bool {
	c.mu.Lock()
	s := c.stream
	c.mu.Unlock()
	if s == nil {
		return false
	}
	return s.push(frame)
}

// Streaming reports whether a stream is open.
func (c *ShellCamera) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *ShellCamera) release(s *shellStream) {
	c.mu.Lock()
	released := c.stream == s
	if released {
		c.stream = nil
	}
	c.mu.Unlock()

	if released && c.onRelease != nil {
		c.onRelease()
	}
}

type shellStream struct {
	camera *ShellCamera

	mu       sync.Mutex
	latest   []byte
	ready    chan struct{}
	gotFrame bool
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *shellStream) push(frame []byte) bool {
	select {
	case <-s.stopped:
		return false
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = append(s.latest[:0], frame...)
	if !s.gotFrame {
		s.gotFrame = true
		close(s.ready)
	}
	return true
}

// Frame returns a copy of the most recent frame, waiting for the first one.
func (s *shellStream) Frame(ctx context.Context) ([]byte, error) {
	select {
	case <-s.ready:
	case <-s.stopped:
		return nil, ErrStreamStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case <-s.stopped:
		return nil, ErrStreamStopped
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.latest...), nil
}

func (s *shellStream) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.mu.Lock()
		s.latest = nil
		s.mu.Unlock()
		s.camera.release(s)
	})
}
