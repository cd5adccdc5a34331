// Package clock paces animation loops at a fixed frame interval.
package clock

import (
	"context"
	"time"
)

// Clock is the time source of a Frame. Real returns the wall clock.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time        { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Real is the process wall clock.
var Real Clock = realClock{}

// Frame keeps a loop to a constant period. The mark advances by exactly one
// interval per tick while the loop keeps up, so no drift accumulates. When a
// tick overruns, the mark resets to now and no sleep happens.
type Frame struct {
	clock    Clock
	interval time.Duration
	mark     time.Time
}

// New returns a Frame on the wall clock whose first period starts now.
func New(interval time.Duration) *Frame {
	return NewWithClock(Real, interval)
}

// NewWithClock returns a Frame driven by c.
func NewWithClock(c Clock, interval time.Duration) *Frame {
	return &Frame{clock: c, interval: interval, mark: c.Now()}
}

// Interval returns the frame period.
func (f *Frame) Interval() time.Duration { return f.interval }

// Reset starts a new period at the current time.
func (f *Frame) Reset() { f.mark = f.clock.Now() }

// Remaining returns the time left in the current period, never negative.
func (f *Frame) Remaining() time.Duration {
	left := f.mark.Add(f.interval).Sub(f.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Tick blocks until the current period ends and starts the next one.
func (f *Frame) Tick() {
	next := f.mark.Add(f.interval)
	now := f.clock.Now()
	if now.Before(next) {
		f.clock.Sleep(next.Sub(now))
		f.mark = next
		return
	}
	f.mark = now
}

// TickContext is Tick that returns early with ctx.Err() when ctx is done.
// Only the wall clock honors cancellation mid-sleep.
func (f *Frame) TickContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := f.mark.Add(f.interval)
	now := f.clock.Now()
	if !now.Before(next) {
		f.mark = now
		return nil
	}

	if _, ok := f.clock.(realClock); !ok {
		f.clock.Sleep(next.Sub(now))
		f.mark = next
		return ctx.Err()
	}

	t := time.NewTimer(next.Sub(now))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		f.mark = next
		return nil
	}
}
