// Package input reads keystrokes on a goroutine of its own, concurrently with
// a render loop, echoing accepted characters into a sub-window of the canvas.
//
// Captures never hold the canvas lock while waiting for a key. Progress is
// written under the lock and must be read under it too, either through
// Progress or through ProgressWith from inside a canvas.Do block.
package input

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode"

	"kanoinit/internal/canvas"
	"kanoinit/internal/logging"
)

// Default timings.
const (
	DefaultPoll       = 100 * time.Millisecond
	DefaultStartDelay = 500 * time.Millisecond
)

// KeySource delivers keystrokes. ReadKey waits at most timeout.
type KeySource interface {
	ReadKey(timeout time.Duration) (canvas.Key, bool)
}

// Config describes a fixed-target capture.
type Config struct {
	Target string
	// Row and Col locate the echo region on the canvas.
	Row, Col int
	// Poll bounds each key wait, and so how quickly Stop is observed.
	Poll time.Duration
	// StartDelay holds off reading so the challenge can paint first.
	StartDelay time.Duration
	Style      canvas.Style
}

// Capture matches keystrokes against a fixed target.
type Capture struct {
	cv   *canvas.Canvas
	keys KeySource
	cfg  Config

	target  *Target // guarded by the canvas lock
	stop    atomic.Bool
	matched atomic.Bool
	done    chan struct{}
}

// NewCapture prepares a capture. Call Run on its own goroutine.
func NewCapture(cv *canvas.Canvas, keys KeySource, cfg Config) *Capture {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	}
	return &Capture{
		cv:     cv,
		keys:   keys,
		cfg:    cfg,
		target: NewTarget(cfg.Target),
		done:   make(chan struct{}),
	}
}

// Run reads keys until the target is typed, Stop is called or ctx ends.
// A full match returns nil and sets Matched. Stop returns nil. Cancellation
// returns ctx.Err(). Canvas failures are returned as is.
func (c *Capture) Run(ctx context.Context) error {
	defer close(c.done)

	win, err := c.cv.NewSubWindow(1, c.target.Len()+1, c.cfg.Row, c.cfg.Col)
	if err != nil {
		return fmt.Errorf("opening echo window: %w", err)
	}

	if !c.wait(ctx, c.cfg.StartDelay) {
		return c.exit(ctx)
	}

	if err := c.cv.Do(func(p *canvas.Pen) error {
		if err := win.CursorTo(p, 0); err != nil {
			return err
		}
		return p.Refresh()
	}); err != nil {
		return err
	}

	logging.InputDebug("capture started for %q", c.cfg.Target)
	for {
		if c.stop.Load() || ctx.Err() != nil {
			return c.exit(ctx)
		}

		k, ok := c.keys.ReadKey(c.cfg.Poll)
		if !ok || !k.IsRune() {
			continue
		}

		var full bool
		err := c.cv.Do(func(p *canvas.Pen) error {
			if c.stop.Load() || !c.target.Feed(k.Rune) {
				return nil
			}
			pos := c.target.Pos()
			if err := win.Put(p, pos-1, unicode.ToLower(k.Rune), c.cfg.Style); err != nil {
				return err
			}
			if err := win.CursorTo(p, pos); err != nil {
				return err
			}
			full = c.target.Done()
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		if full {
			c.matched.Store(true)
			logging.InputDebug("capture matched %q", c.cfg.Target)
			return nil
		}
	}
}

// wait sleeps d in poll-sized steps, returning false when stopped early.
func (c *Capture) wait(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if c.stop.Load() || ctx.Err() != nil {
			return false
		}
		left := time.Until(deadline)
		if left <= 0 {
			return true
		}
		if left > c.cfg.Poll {
			left = c.cfg.Poll
		}
		time.Sleep(left)
	}
}

func (c *Capture) exit(ctx context.Context) error {
	if c.stop.Load() {
		return nil
	}
	return ctx.Err()
}

// Stop asks Run to return. It is observed within one poll interval.
func (c *Capture) Stop() { c.stop.Store(true) }

// Matched reports whether the whole target was typed.
func (c *Capture) Matched() bool { return c.matched.Load() }

// Done is closed when Run returns.
func (c *Capture) Done() <-chan struct{} { return c.done }

// Progress returns the typed position, taking the canvas lock.
func (c *Capture) Progress() int {
	pos := 0
	_ = c.cv.Do(func(p *canvas.Pen) error {
		pos = c.ProgressWith(p)
		return nil
	})
	return pos
}

// ProgressWith returns the typed position from inside a canvas.Do block.
func (c *Capture) ProgressWith(_ *canvas.Pen) int {
	return c.target.Pos()
}

// Len returns the target length in runes.
func (c *Capture) Len() int { return c.target.Len() }
