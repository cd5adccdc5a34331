package canvas

import (
	"github.com/gdamore/tcell/v2"
	"github.com/gdamore/tcell/v2/views"
)

// SubWindow is an isolated region of the canvas, used to echo typed input.
// Writes are clipped to the region.
type SubWindow struct {
	view       *views.ViewPort
	row, col   int
	rows, cols int
}

// NewSubWindow carves a rows x cols region whose top-left cell is (row, col).
func (c *Canvas) NewSubWindow(rows, cols, row, col int) (*SubWindow, error) {
	var w *SubWindow
	err := c.Do(func(p *Pen) error {
		if err := p.check("subwindow", row, col); err != nil {
			return err
		}
		w = &SubWindow{
			view: views.NewViewPort(c.screen, col, row, cols, rows),
			row:  row,
			col:  col,
			rows: rows,
			cols: cols,
		}
		return nil
	})
	return w, err
}

// Width returns the number of columns of the region.
func (w *SubWindow) Width() int { return w.cols }

// Put writes r at column col of the first row.
func (w *SubWindow) Put(p *Pen, col int, r rune, style Style) error {
	if col < 0 || col >= w.cols {
		rows, cols := p.Dimensions()
		return &RenderError{Op: "put", Row: w.row, Col: w.col + col, Rows: rows, Cols: cols}
	}
	w.view.SetContent(col, 0, r, nil, style)
	return nil
}

// Erase blanks column col of the first row.
func (w *SubWindow) Erase(p *Pen, col int) error {
	return w.Put(p, col, ' ', tcell.StyleDefault)
}

// ClearLine blanks the whole region.
func (w *SubWindow) ClearLine(p *Pen) {
	w.view.Fill(' ', tcell.StyleDefault)
}

// CursorTo places the terminal cursor at column col of the region, clamped to
// its last column.
func (w *SubWindow) CursorTo(p *Pen, col int) error {
	if col >= w.cols {
		col = w.cols - 1
	}
	if col < 0 {
		col = 0
	}
	return p.MoveCursor(w.row, w.col+col)
}
