package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
)

const (
	loadingTick     = 700 * time.Millisecond
	loadingTitleRow = 7
)

// Loading blinks the loading title above a scrolling hex dump.
func Loading(ctx context.Context, env *Env) error {
	cv := env.Canvas
	title, err := env.assets().LoadImage("loading")
	if err != nil {
		return fmt.Errorf("loading title: %w", err)
	}
	dump, err := env.assets().LoadImage("hexdump")
	if err != nil {
		return fmt.Errorf("loading hex dump: %w", err)
	}
	if err := checkSize(cv, "loading", 38, 70); err != nil {
		return err
	}
	registerPalette(cv)

	_, cols := cv.Dimensions()
	titleLines := title.Frame(0)
	titleCol := center(cols, title.Width())
	code := dump.Frame(0)
	codeCol := center(cols, dump.Width())
	codeRow := len(code) + 1 + loadingTitleRow + title.Height() + 2

	if err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		p.HideCursor()
		return p.Refresh()
	}); err != nil {
		return err
	}

	fc := env.frame(loadingTick)
	for cycle := 0; cycle <= len(code); cycle++ {
		err := cv.Do(func(p *canvas.Pen) error {
			if cycle%2 == 0 {
				if err := p.DrawLines(loadingTitleRow, titleCol, titleLines, p.Pair(pairRed)); err != nil {
					return err
				}
			} else {
				for i := range titleLines {
					if err := p.FillRow(loadingTitleRow+i, p.Pair(pairBlank)); err != nil {
						return err
					}
				}
			}
			if err := p.DrawLines(codeRow, codeCol, code[:cycle], tcell.StyleDefault); err != nil {
				return err
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		codeRow--

		if err := fc.TickContext(ctx); err != nil {
			return err
		}
		env.flushInput()
	}
	return nil
}
