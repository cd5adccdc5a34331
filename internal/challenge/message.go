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
	messageTick = 25 * time.Millisecond
	messageTop  = 4
	messageLeft = 9
	// messageTail is held after every message before the next one.
	messageTail = 300 * time.Millisecond
)

// MessageConfig is a block of text typed out on a cleared screen.
type MessageConfig struct {
	Lines []string
	// Highlight is drawn in green wherever it occurs.
	Highlight string
	// Hold keeps the text on screen after typing.
	Hold time.Duration
}

// Message types out cfg.Lines one rune at a time, then holds.
func Message(ctx context.Context, env *Env, cfg MessageConfig) error {
	cv := env.Canvas
	registerPalette(cv)

	rows, cols := cv.Dimensions()
	width := maxTextWidth(cfg.Lines)
	top, left := messageTop, messageLeft
	if top+len(cfg.Lines) > rows {
		top = center(rows, len(cfg.Lines))
	}
	if left+width > cols {
		left = center(cols, width)
	}
	if err := checkSize(cv, "message", len(cfg.Lines), width); err != nil {
		return err
	}

	masks := highlightMasks(cfg.Lines, cfg.Highlight)
	tw := newTypewriter(cfg.Lines)
	fc := env.frame(messageTick)

	if err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		return p.Refresh()
	}); err != nil {
		return err
	}

	logging.ChallengeDebug("message: %d lines", len(cfg.Lines))
	for {
		g, draw, done := tw.step()
		if done {
			break
		}
		if draw {
			err := cv.Do(func(p *canvas.Pen) error {
				style := tcell.StyleDefault
				if masks[g.Row][g.Index] {
					style = p.Pair(pairGreen)
				}
				row, col := top+g.Row, left+g.Col
				if err := p.Draw(row, col, string(g.Rune), style); err != nil {
					return err
				}
				if col+1 < cols {
					if err := p.MoveCursor(row, col+1); err != nil {
						return err
					}
				}
				return p.Refresh()
			})
			if err != nil {
				return err
			}
		}
		if err := fc.TickContext(ctx); err != nil {
			return err
		}
	}

	if err := env.hold(ctx, cfg.Hold+messageTail); err != nil {
		return err
	}
	env.flushInput()
	return nil
}

// highlightMasks marks, per rune, whether it belongs to an occurrence of h.
func highlightMasks(lines []string, h string) [][]bool {
	masks := make([][]bool, len(lines))
	hr := []rune(h)
	for i, l := range lines {
		lr := []rune(l)
		masks[i] = make([]bool, len(lr))
		if len(hr) == 0 {
			continue
		}
		for j := 0; j+len(hr) <= len(lr); j++ {
			if string(lr[j:j+len(hr)]) == h {
				for k := j; k < j+len(hr); k++ {
					masks[i][k] = true
				}
			}
		}
	}
	return masks
}

// Lines splits a message on newlines, keeping blank lines.
func Lines(s string) []string {
	return strings.Split(s, "\n")
}
