// Package canvas is the single shared terminal surface of the onboarding.
//
// Every mutation of the screen goes through one mutex. Callers hold it for the
// smallest possible scope: a single Draw call, or one Do block that paints a
// frame. Keystrokes are read from a channel fed by the canvas' own event pump,
// so reading input never requires the lock.
package canvas

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"kanoinit/internal/logging"
)

// ErrRenderFailure marks any write the terminal rejected. It is fatal: the
// terminal has to be restored and the process terminated.
var ErrRenderFailure = errors.New("render failure")

// RenderError describes a rejected canvas operation.
type RenderError struct {
	Op         string
	Row, Col   int
	Rows, Cols int
	Closed     bool
}

func (e *RenderError) Error() string {
	if e.Closed {
		return fmt.Sprintf("render failure: %s on closed canvas", e.Op)
	}
	return fmt.Sprintf("render failure: %s at (%d,%d) outside %dx%d screen",
		e.Op, e.Row, e.Col, e.Rows, e.Cols)
}

// Is reports ErrRenderFailure as the sentinel for every RenderError.
func (e *RenderError) Is(target error) bool {
	return target == ErrRenderFailure
}

// Style is the attribute set of a drawn cell.
type Style = tcell.Style

// Key is one keystroke. Code is tcell.KeyRune for printable input.
type Key struct {
	Code tcell.Key
	Rune rune
}

// IsRune reports whether the key carries a printable rune.
func (k Key) IsRune() bool {
	return k.Code == tcell.KeyRune
}

// keyBuffer bounds how many unread keystrokes are kept.
const keyBuffer = 64

// Canvas serializes access to a tcell screen.
type Canvas struct {
	mu     sync.Mutex
	screen tcell.Screen
	pairs  map[int]Style
	closed bool
	// suspended is set while another program owns the terminal.
	suspended bool

	keys      chan Key
	quit      chan struct{}
	pumpDone  chan struct{}
	closeOnce sync.Once
}

// Open puts the controlling terminal into full-screen raw mode.
func Open() (*Canvas, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("creating screen: %w", err)
	}
	return New(screen)
}

// New initializes screen and starts the event pump. The caller must Close the
// canvas on every path to restore the terminal.
func New(screen tcell.Screen) (*Canvas, error) {
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("initializing screen: %w", err)
	}
	screen.SetStyle(tcell.StyleDefault)
	screen.HideCursor()
	screen.Clear()
	screen.Show()

	c := &Canvas{
		screen:   screen,
		pairs:    make(map[int]Style),
		keys:     make(chan Key, keyBuffer),
		quit:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
	go c.pump()

	rows, cols := c.Dimensions()
	logging.Render("canvas opened %dx%d", rows, cols)
	return c, nil
}

// Close clears the screen and restores the terminal mode. Safe to call more
// than once.
func (c *Canvas) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.screen.Clear()
		c.screen.Show()
		c.screen.Fini()
		c.mu.Unlock()

		close(c.quit)

		// PollEvent returns nil once the screen is finalized.
		select {
		case <-c.pumpDone:
		case <-time.After(100 * time.Millisecond):
		}
		logging.Render("canvas closed")
	})
}

// Suspend hands the terminal back to its cooked mode so a child process can
// use it. Call Resume when the child exits.
func (c *Canvas) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &RenderError{Op: "suspend", Closed: true}
	}
	if c.suspended {
		return nil
	}
	if err := c.screen.Suspend(); err != nil {
		return fmt.Errorf("suspending screen: %w", err)
	}
	c.suspended = true
	logging.Render("canvas suspended")
	return nil
}

// Resume takes the terminal back after Suspend and repaints a blank screen.
// Keys typed while suspended are discarded.
func (c *Canvas) Resume() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &RenderError{Op: "resume", Closed: true}
	}
	if !c.suspended {
		c.mu.Unlock()
		return nil
	}
	if err := c.screen.Resume(); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("resuming screen: %w", err)
	}
	c.suspended = false
	c.screen.HideCursor()
	c.screen.Clear()
	c.screen.Sync()
	c.mu.Unlock()

	c.FlushInput()
	logging.Render("canvas resumed")
	return nil
}

// pump reads events until the screen is finalized.
func (c *Canvas) pump() {
	defer close(c.pumpDone)
	for {
		ev := c.screen.PollEvent()
		if ev == nil {
			return
		}

		switch ev := ev.(type) {
		case *tcell.EventKey:
			k := Key{Code: ev.Key(), Rune: ev.Rune()}
			select {
			case c.keys <- k:
			case <-c.quit:
				return
			}
		case *tcell.EventResize:
			c.mu.Lock()
			if !c.closed && !c.suspended {
				c.screen.Sync()
			}
			c.mu.Unlock()
			cols, rows := ev.Size()
			logging.Render("terminal resized to %dx%d", rows, cols)
		}
	}
}

// ReadKey waits up to timeout for a keystroke. It never takes the canvas lock.
func (c *Canvas) ReadKey(timeout time.Duration) (Key, bool) {
	select {
	case k := <-c.keys:
		return k, true
	default:
	}
	if timeout <= 0 {
		return Key{}, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case k := <-c.keys:
		return k, true
	case <-t.C:
		return Key{}, false
	}
}

// FlushInput discards keystrokes typed ahead of time.
func (c *Canvas) FlushInput() {
	for {
		select {
		case <-c.keys:
		default:
			return
		}
	}
}

// Do runs fn while holding the canvas lock. fn must not block on anything
// but drawing: no sleeps and no key reads.
func (c *Canvas) Do(fn func(p *Pen) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &RenderError{Op: "do", Closed: true}
	}
	return fn(&Pen{c: c})
}

// RegisterPair defines a foreground/background color pair.
func (c *Canvas) RegisterPair(id int, fg, bg tcell.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pairs[id] = tcell.StyleDefault.Foreground(fg).Background(bg)
}

// Pair returns the style registered under id, or the default style.
func (c *Canvas) Pair(id int) Style {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.pairs[id]; ok {
		return s
	}
	return tcell.StyleDefault
}

// Dimensions returns the terminal size as (rows, cols).
func (c *Canvas) Dimensions() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols, rows := c.screen.Size()
	return rows, cols
}

// Draw writes text starting at (row, col).
func (c *Canvas) Draw(row, col int, text string, style Style) error {
	return c.Do(func(p *Pen) error { return p.Draw(row, col, text, style) })
}

// DrawLines writes a block of lines, one per row, as a single locked operation.
func (c *Canvas) DrawLines(row, col int, lines []string, style Style) error {
	return c.Do(func(p *Pen) error { return p.DrawLines(row, col, lines, style) })
}

// FillRow paints a whole row with blanks in style.
func (c *Canvas) FillRow(row int, style Style) error {
	return c.Do(func(p *Pen) error { return p.FillRow(row, style) })
}

// MoveCursor shows the cursor at (row, col).
func (c *Canvas) MoveCursor(row, col int) error {
	return c.Do(func(p *Pen) error { return p.MoveCursor(row, col) })
}

// HideCursor hides the terminal cursor.
func (c *Canvas) HideCursor() error {
	return c.Do(func(p *Pen) error { p.HideCursor(); return nil })
}

// Clear blanks the whole screen.
func (c *Canvas) Clear() error {
	return c.Do(func(p *Pen) error { p.Clear(); return nil })
}

// Refresh flushes pending changes to the terminal.
func (c *Canvas) Refresh() error {
	return c.Do(func(p *Pen) error { return p.Refresh() })
}

// Pen draws on a canvas whose lock is already held. It is only valid inside
// the Do callback that produced it.
type Pen struct {
	c *Canvas
}

// Pair returns the style registered under id, or the default style.
func (p *Pen) Pair(id int) Style {
	if s, ok := p.c.pairs[id]; ok {
		return s
	}
	return tcell.StyleDefault
}

// Dimensions returns the terminal size as (rows, cols).
func (p *Pen) Dimensions() (int, int) {
	cols, rows := p.c.screen.Size()
	return rows, cols
}

func (p *Pen) check(op string, row, col int) error {
	rows, cols := p.Dimensions()
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return &RenderError{Op: op, Row: row, Col: col, Rows: rows, Cols: cols}
	}
	return nil
}

// Draw writes text starting at (row, col). Text past the right edge is
// clipped; a start cell outside the screen is a RenderError.
func (p *Pen) Draw(row, col int, text string, style Style) error {
	if err := p.check("draw", row, col); err != nil {
		return err
	}
	_, cols := p.Dimensions()
	x := col
	for _, r := range text {
		if x >= cols {
			break
		}
		p.c.screen.SetContent(x, row, r, nil, style)
		w := runewidth.RuneWidth(r)
		if w < 1 {
			w = 1
		}
		x += w
	}
	return nil
}

// DrawLines writes lines on consecutive rows.
func (p *Pen) DrawLines(row, col int, lines []string, style Style) error {
	for i, line := range lines {
		if err := p.Draw(row+i, col, line, style); err != nil {
			return err
		}
	}
	return nil
}

// FillRow paints a whole row with blanks in style.
func (p *Pen) FillRow(row int, style Style) error {
	if err := p.check("fill", row, 0); err != nil {
		return err
	}
	_, cols := p.Dimensions()
	for x := 0; x < cols; x++ {
		p.c.screen.SetContent(x, row, ' ', nil, style)
	}
	return nil
}

// MoveCursor shows the cursor at (row, col).
func (p *Pen) MoveCursor(row, col int) error {
	if err := p.check("move", row, col); err != nil {
		return err
	}
	p.c.screen.ShowCursor(col, row)
	return nil
}

// HideCursor hides the terminal cursor.
func (p *Pen) HideCursor() {
	p.c.screen.HideCursor()
}

// Clear blanks the whole screen.
func (p *Pen) Clear() {
	p.c.screen.Clear()
}

// Refresh flushes pending changes to the terminal.
func (p *Pen) Refresh() error {
	p.c.screen.Show()
	return nil
}
