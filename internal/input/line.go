package input

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
	"kanoinit/internal/logging"
)

// LineConfig describes a free-text capture.
type LineConfig struct {
	Row, Col int
	MaxLen   int
	Poll     time.Duration
	Style    canvas.Style
}

// LineCapture collects one line of free text: printable runes up to MaxLen,
// Backspace deletes, Enter submits.
type LineCapture struct {
	cv   *canvas.Canvas
	keys KeySource
	cfg  LineConfig

	buf       []rune // guarded by the canvas lock
	line      string
	stop      atomic.Bool
	submitted atomic.Bool
	done      chan struct{}
}

// NewLineCapture prepares a line capture. Call Run on its own goroutine.
func NewLineCapture(cv *canvas.Canvas, keys KeySource, cfg LineConfig) *LineCapture {
	if cfg.Poll <= 0 {
		cfg.Poll = DefaultPoll
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = 1
	}
	return &LineCapture{cv: cv, keys: keys, cfg: cfg, done: make(chan struct{})}
}

// Run reads keys until Enter, Stop or ctx cancellation.
func (l *LineCapture) Run(ctx context.Context) error {
	defer close(l.done)

	win, err := l.cv.NewSubWindow(1, l.cfg.MaxLen+1, l.cfg.Row, l.cfg.Col)
	if err != nil {
		return fmt.Errorf("opening line window: %w", err)
	}
	if err := l.cv.Do(func(p *canvas.Pen) error {
		win.ClearLine(p)
		if err := win.CursorTo(p, 0); err != nil {
			return err
		}
		return p.Refresh()
	}); err != nil {
		return err
	}

	for {
		if l.stop.Load() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		k, ok := l.keys.ReadKey(l.cfg.Poll)
		if !ok {
			continue
		}

		var submit bool
		err := l.cv.Do(func(p *canvas.Pen) error {
			switch {
			case k.Code == tcell.KeyEnter:
				l.line = string(l.buf)
				submit = true
				return nil
			case k.Code == tcell.KeyBackspace || k.Code == tcell.KeyBackspace2:
				if len(l.buf) == 0 {
					return nil
				}
				l.buf = l.buf[:len(l.buf)-1]
				if err := win.Erase(p, len(l.buf)); err != nil {
					return err
				}
			case k.IsRune() && unicode.IsPrint(k.Rune):
				if len(l.buf) >= l.cfg.MaxLen {
					return nil
				}
				l.buf = append(l.buf, k.Rune)
				if err := win.Put(p, len(l.buf)-1, k.Rune, l.cfg.Style); err != nil {
					return err
				}
			default:
				return nil
			}
			if err := win.CursorTo(p, len(l.buf)); err != nil {
				return err
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		if submit {
			l.submitted.Store(true)
			logging.InputDebug("line submitted (%d runes)", len([]rune(l.line)))
			return nil
		}
	}
}

// Stop asks Run to return within one poll interval.
func (l *LineCapture) Stop() { l.stop.Store(true) }

// Submitted reports whether Enter ended the capture.
func (l *LineCapture) Submitted() bool { return l.submitted.Load() }

// Done is closed when Run returns.
func (l *LineCapture) Done() <-chan struct{} { return l.done }

// Line returns the submitted text. Valid once Done is closed.
func (l *LineCapture) Line() string { return l.line }
