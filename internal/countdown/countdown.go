// Package countdown implements the attempt timer: a fixed-period tick that
// decrements the remaining seconds and raises expiry exactly once.
package countdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPeriod is the tick cadence of a real attempt.
const DefaultPeriod = time.Second

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = errors.New("countdown already started")

// TickerFunc creates a tick source and its release function.
type TickerFunc func(period time.Duration) (<-chan time.Time, func())

// RealTicker is the TickerFunc backed by time.Ticker.
func RealTicker(period time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(period)
	return t.C, t.Stop
}

// Options tunes a Countdown. Zero values select the defaults.
type Options struct {
	Period    time.Duration
	NewTicker TickerFunc
}

// Countdown is a monotonic, single-use timer.
type Countdown struct {
	period    time.Duration
	newTicker TickerFunc

	mu        sync.Mutex
	remaining int
	started   bool

	stopped  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New creates a countdown over seconds. Negative values are treated as zero.
func New(seconds int, opts Options) *Countdown {
	if seconds < 0 {
		seconds = 0
	}
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.NewTicker == nil {
		opts.NewTicker = RealTicker
	}
	return &Countdown{
		period:    opts.Period,
		newTicker: opts.NewTicker,
		remaining: seconds,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins ticking in its own goroutine. onTick receives the remaining
// seconds after every decrement; onExpire runs once when zero is reached and
// ticking ends. A countdown that starts at zero expires immediately.
// Neither callback starts after Stop or after ctx is cancelled.
func (c *Countdown) Start(ctx context.Context, onTick func(remaining int), onExpire func()) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	go c.run(ctx, onTick, onExpire)
	return nil
}

func (c *Countdown) run(ctx context.Context, onTick func(int), onExpire func()) {
	defer close(c.done)

	if c.Remaining() == 0 {
		if c.live(ctx) {
			onExpire()
		}
		return
	}

	ticks, release := c.newTicker(c.period)
	defer release()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case <-ticks:
			if !c.live(ctx) {
				return
			}
			remaining := c.decrement()
			onTick(remaining)
			if remaining == 0 {
				if c.live(ctx) {
					onExpire()
				}
				return
			}
		}
	}
}

func (c *Countdown) live(ctx context.Context) bool {
	return ctx.Err() == nil && !c.stopped.Load()
}

func (c *Countdown) decrement() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining > 0 {
		c.remaining--
	}
	return c.remaining
}

// Remaining returns the seconds left, never negative.
func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Stop ends ticking. It is idempotent and safe to call from any goroutine,
// including from inside a callback.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stop)
	})
}

// Done is closed once the ticking goroutine has exited.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}
