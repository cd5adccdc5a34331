package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/asset"
	"kanoinit/internal/canvas"
	"kanoinit/internal/logging"
)

const (
	rabbitTick = 150 * time.Millisecond
	rabbitStep = 10
	rabbitRest = 500 * time.Millisecond
)

// RabbitConfig controls the white rabbit run.
type RabbitConfig struct {
	// Cycles is the number of passes across the screen. Zero stops the
	// rabbit in the middle of the screen.
	Cycles      int
	RightToLeft bool
}

// Rabbit runs the white rabbit sprite across the screen, turning around at
// the edges.
func Rabbit(ctx context.Context, env *Env, cfg RabbitConfig) error {
	cv := env.Canvas
	lr, err := env.assets().LoadFrames("rabbit-animation")
	if err != nil {
		return fmt.Errorf("loading rabbit: %w", err)
	}
	rl, err := env.assets().LoadFrames("rabbit-animation-reversed")
	if err != nil {
		return fmt.Errorf("loading rabbit: %w", err)
	}

	width, height := lr.Width(), lr.Height()
	if err := checkSize(cv, "rabbit", height+2, width+2); err != nil {
		return err
	}
	rng := env.rng()
	rows, cols := cv.Dimensions()
	middle := cols/2 - width/2

	sprite, x, dx := lr, -width, rabbitStep
	if cfg.RightToLeft {
		sprite, x, dx = rl, cols, -rabbitStep
	}
	y := rng.Intn(rows - height)

	if err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		p.HideCursor()
		return p.Refresh()
	}); err != nil {
		return err
	}

	fc := env.frame(rabbitTick)
	frame, passes := 0, 0
	for {
		err := cv.Do(func(p *canvas.Pen) error {
			for r := y; r < y+height; r++ {
				if err := p.FillRow(r, tcell.StyleDefault); err != nil {
					return err
				}
			}
			if err := drawClipped(p, y, x, sprite.Frame(frame), width); err != nil {
				return err
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		frame = (frame + 1) % sprite.Len()
		x += dx

		if cfg.Cycles == 0 && ((dx > 0 && x >= middle) || (dx < 0 && x <= middle)) {
			if err := env.hold(ctx, rabbitRest); err != nil {
				return err
			}
			break
		}
		if x > cols || x < -width {
			passes++
			if passes >= cfg.Cycles {
				break
			}
			dx = -dx
			sprite = other(sprite, lr, rl)
			frame = 0
			y = rng.Intn(rows - height)
		}

		if err := fc.TickContext(ctx); err != nil {
			return err
		}
	}

	logging.ChallengeDebug("rabbit finished after %d passes", passes)
	return nil
}

func other(cur, a, b *asset.Animation) *asset.Animation {
	if cur == a {
		return b
	}
	return a
}

// drawClipped draws a sprite whose left edge sits at column x, which may be
// off either side of the screen.
func drawClipped(p *canvas.Pen, row, x int, lines []string, width int) error {
	_, cols := p.Dimensions()
	for i, line := range lines {
		text := clipLine([]rune(line), x, width, cols)
		if text == "" {
			continue
		}
		col := x
		if col < 0 {
			col = 0
		}
		if err := p.Draw(row+i, col, text, tcell.StyleDefault); err != nil {
			return err
		}
	}
	return nil
}

// clipLine returns the part of line that is visible when the sprite starts
// at column x on a screen cols wide.
func clipLine(line []rune, x, width, cols int) string {
	lo, hi := 0, width
	if x < 0 {
		lo = -x
	}
	if x+width > cols {
		hi = cols - x
	}
	if hi > len(line) {
		hi = len(line)
	}
	if lo >= hi {
		return ""
	}
	return string(line[lo:hi])
}
