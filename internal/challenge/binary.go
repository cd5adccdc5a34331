package challenge

import (
	"context"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
	"kanoinit/internal/logging"
)

const (
	binaryTick = 125 * time.Millisecond
	gridSize   = 10
)

// BinaryConfig holds the text around the switches grid.
type BinaryConfig struct {
	Title  string
	Prompt string
}

// Binary redraws a grid of random bits until any key is pressed.
func Binary(ctx context.Context, env *Env, cfg BinaryConfig) error {
	cv := env.Canvas
	if err := checkSize(cv, "binary", 40, 70); err != nil {
		return err
	}
	registerPalette(cv)
	rng := env.rng()

	rows, cols := cv.Dimensions()
	left := (cols - gridSize*4) / 2
	top := (rows - gridSize*2) / 2
	titleRow := top - 2
	promptRow := top + gridSize*2 + 2
	cursorRow, cursorCol := promptRow+2, cols/2
	separator := "| " + strings.Repeat("- | ", gridSize-1)

	err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		if err := p.Draw(titleRow, center(cols, textWidth(cfg.Title)), cfg.Title, tcell.StyleDefault); err != nil {
			return err
		}
		if err := p.Draw(promptRow, center(cols, textWidth(cfg.Prompt)), cfg.Prompt, tcell.StyleDefault); err != nil {
			return err
		}
		return p.Refresh()
	})
	if err != nil {
		return err
	}
	env.flushInput()

	fc := env.frame(binaryTick)
	keys := env.keys()
	ticks := 0
	for {
		err := cv.Do(func(p *canvas.Pen) error {
			one, zero := p.Pair(pairGreen), p.Pair(pairRed)
			y := top
			for r := 0; r < gridSize; r++ {
				x := left
				for c := 0; c < gridSize; c++ {
					bit, style := "0", zero
					if rng.Intn(2) == 1 {
						bit, style = "1", one
					}
					if err := p.Draw(y, x, bit, style); err != nil {
						return err
					}
					x++
					if c < gridSize-1 {
						if err := p.Draw(y, x, " - ", tcell.StyleDefault); err != nil {
							return err
						}
						x += 3
					}
				}
				if r < gridSize-1 {
					y++
					if err := p.Draw(y, left, separator, tcell.StyleDefault); err != nil {
						return err
					}
					y++
				}
			}
			if err := p.MoveCursor(cursorRow, cursorCol); err != nil {
				return err
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		ticks++

		if _, ok := keys.ReadKey(fc.Remaining()); ok {
			break
		}
		if err := fc.TickContext(ctx); err != nil {
			return err
		}
	}

	logging.ChallengeDebug("binary grid dismissed after %d ticks", ticks)
	env.flushInput()
	return nil
}
