// Package timer implements a deadline-based countdown.
//
// Remaining time is always derived from an absolute deadline and the current clock,
// so late or skipped ticks never skew the reading or the expiry decision.
package timer

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultWarningThreshold is the remaining time below which a countdown is in warning mode.
	DefaultWarningThreshold = 2 * time.Minute
	// DefaultTickInterval is the display cadence of Run.
	DefaultTickInterval = time.Second
)

// Reading is a single observation of a countdown.
type Reading struct {
	Remaining time.Duration
	// Seconds is Remaining rounded up, so it reaches 0 only on expiry.
	Seconds int
	Warning bool
	Expired bool
}

// Countdown fires its expiry callback exactly once when the deadline passes.
type Countdown struct {
	now     func() time.Time
	warning time.Duration

	mu       sync.Mutex
	deadline time.Time
	duration time.Duration
	onExpire func()
	expired  bool
	stopped  bool
	done     chan struct{}
}

// Option customises a Countdown.
type Option func(*Countdown)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Countdown) {
		if now != nil {
			c.now = now
		}
	}
}

// WithWarningThreshold overrides DefaultWarningThreshold.
func WithWarningThreshold(d time.Duration) Option {
	return func(c *Countdown) {
		if d >= 0 {
			c.warning = d
		}
	}
}

// New arms a countdown whose deadline is now+duration.
func New(duration time.Duration, onExpire func(), opts ...Option) *Countdown {
	c := &Countdown{
		now:      time.Now,
		warning:  DefaultWarningThreshold,
		duration: duration,
		onExpire: onExpire,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.deadline = c.now().Add(duration)
	return c
}

// Deadline returns the absolute expiry time fixed at construction.
func (c *Countdown) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Duration returns the declared length of the countdown.
func (c *Countdown) Duration() time.Duration {
	return c.duration
}

// SetOnExpire swaps the expiry callback. The deadline is left untouched.
func (c *Countdown) SetOnExpire(fn func()) {
	c.mu.Lock()
	c.onExpire = fn
	c.mu.Unlock()
}

// Peek reads the countdown without triggering expiry.
func (c *Countdown) Peek() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(c.now())
}

// Tick reads the countdown and, the first time the deadline is observed as passed,
// invokes the expiry callback. The callback runs outside the countdown's lock.
func (c *Countdown) Tick() Reading {
	c.mu.Lock()
	reading := c.readLocked(c.now())
	var fire func()
	if reading.Remaining == 0 && !c.expired && !c.stopped {
		c.expired = true
		fire = c.onExpire
		close(c.done)
	}
	reading.Expired = c.expired
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
	return reading
}

// Stop cancels the countdown. A stopped countdown never expires.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.expired {
		return
	}
	c.stopped = true
	close(c.done)
}

// Done is closed once the countdown expires or is stopped.
func (c *Countdown) Done() <-chan struct{} {
	return c.done
}

// Run ticks every interval until expiry, Stop, or ctx cancellation.
// onTick may be nil.
func (c *Countdown) Run(ctx context.Context, interval time.Duration, onTick func(Reading)) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		reading := c.Tick()
		if onTick != nil {
			onTick(reading)
		}
		if reading.Expired {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
		}
	}
}

func (c *Countdown) readLocked(now time.Time) Reading {
	remaining := c.deadline.Sub(now)
	if remaining < 0 || c.expired {
		remaining = 0
	}
	seconds := int(remaining / time.Second)
	if remaining%time.Second != 0 {
		seconds++
	}
	return Reading{
		Remaining: remaining,
		Seconds:   seconds,
		Warning:   remaining > 0 && remaining < c.warning,
		Expired:   c.expired,
	}
}
