package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"kanoinit/internal/canvas"
	"kanoinit/internal/input"
	"kanoinit/internal/logging"
)

const (
	bombTick      = 125 * time.Millisecond
	digitEvery    = 8
	blinkDuration = time.Second
	blinkInterval = 80 * time.Millisecond
)

// BombState is the state of the countdown game.
type BombState int

const (
	Counting BombState = iota
	Blinking
	BombWon
	Exploded
)

func (s BombState) String() string {
	switch s {
	case Counting:
		return "counting"
	case Blinking:
		return "blinking"
	case BombWon:
		return "won"
	case Exploded:
		return "exploded"
	default:
		return fmt.Sprintf("BombState(%d)", int(s))
	}
}

// countdown advances one digit every digitEvery ticks.
type countdown struct {
	digits int
	tick   int
	shown  int
	state  BombState
}

// step advances one tick and returns the digit frame to draw, if any.
func (c *countdown) step() (frame int, draw bool) {
	if c.tick%digitEvery == 0 && c.shown < c.digits {
		frame, draw = c.shown, true
		c.shown++
	}
	c.tick++
	return frame, draw
}

func (c *countdown) exhausted() bool { return c.shown >= c.digits }

// resolve settles the tick after step. A completed target wins even on the
// tick the last digit runs out.
func (c *countdown) resolve(typed bool) BombState {
	if c.state != Counting {
		return c.state
	}
	switch {
	case typed:
		c.state = BombWon
	case c.exhausted():
		c.state = Exploded
	}
	return c.state
}

// BombConfig holds the text of the countdown game. The message reads
// Lead + Target + Tail with the target highlighted.
type BombConfig struct {
	Target string
	Lead   string
	Tail   string
}

// Bomb runs the countdown typing game: the player must type cfg.Target before
// the countdown runs out.
func Bomb(ctx context.Context, env *Env, cfg BombConfig) (Result, error) {
	cv := env.Canvas
	assets := env.assets()

	spark, err := assets.LoadFrames("spark")
	if err != nil {
		return Failed, fmt.Errorf("loading spark: %w", err)
	}
	numbers, err := assets.LoadFrames("numbers")
	if err != nil {
		return Failed, fmt.Errorf("loading numbers: %w", err)
	}
	bomb, err := assets.LoadFrames("bomb")
	if err != nil {
		return Failed, fmt.Errorf("loading bomb: %w", err)
	}

	if err := checkSize(cv, "bomb", bomb.Height()+8, bomb.Width()+numbers.Width()+10); err != nil {
		return Failed, err
	}
	registerPalette(cv)

	rows, cols := cv.Dimensions()
	top := (rows - bomb.Height() - 8) / 2
	left := (cols - bomb.Width() - numbers.Width() - 10) / 2

	// Digits sit beside the bomb, vertically centred on it, and always end
	// above the message.
	numRow := top
	if d := bomb.Height() - numbers.Height(); d > 0 {
		numRow += d / 2
	}
	numCol := left + 10 + bomb.Width()

	highlight := " " + cfg.Target + " "
	msgRow := top + bomb.Height() + 2
	if below := numRow + numbers.Height() + 1; msgRow < below {
		msgRow = below
	}
	msgCol := left + (numbers.Width()+10)/2
	msgWidth := textWidth(cfg.Lead) + textWidth(highlight) + textWidth(cfg.Tail)
	if msgCol+msgWidth > cols {
		msgCol = center(cols, msgWidth)
	}
	inputRow := msgRow + 2
	inputCol := msgCol + msgWidth/2 - 3
	if inputCol+len(cfg.Target)+1 > cols {
		inputCol = center(cols, len(cfg.Target)+1)
	}

	err = cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		if err := p.DrawLines(top, left, bomb.Frame(0), tcell.StyleDefault); err != nil {
			return err
		}
		x := msgCol
		if err := p.Draw(msgRow, x, cfg.Lead, tcell.StyleDefault); err != nil {
			return err
		}
		x += textWidth(cfg.Lead)
		if err := p.Draw(msgRow, x, highlight, p.Pair(pairGreen)); err != nil {
			return err
		}
		x += textWidth(highlight)
		if cfg.Tail != "" {
			if err := p.Draw(msgRow, x, cfg.Tail, tcell.StyleDefault); err != nil {
				return err
			}
		}
		return p.Refresh()
	})
	if err != nil {
		return Failed, err
	}
	env.flushInput()

	capture := input.NewCapture(cv, env.keys(), input.Config{
		Target:     cfg.Target,
		Row:        inputRow,
		Col:        inputCol,
		Poll:       env.scale(input.DefaultPoll),
		StartDelay: env.scale(input.DefaultStartDelay),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return capture.Run(gctx) })

	cd := &countdown{digits: numbers.Len()}
	fc := env.frame(bombTick)
	sparkFrame := 0
	state := Counting

	var loopErr error
	for state == Counting {
		loopErr = cv.Do(func(p *canvas.Pen) error {
			if frame, draw := cd.step(); draw {
				if err := p.DrawLines(numRow, numCol, numbers.Frame(frame), tcell.StyleDefault); err != nil {
					return err
				}
			}
			if err := p.DrawLines(top, left, spark.Frame(sparkFrame), tcell.StyleDefault); err != nil {
				return err
			}
			sparkFrame++

			pos := capture.ProgressWith(p)
			state = cd.resolve(pos >= capture.Len())
			if err := p.MoveCursor(inputRow, inputCol+pos); err != nil {
				return err
			}
			return p.Refresh()
		})
		if loopErr != nil || state != Counting {
			break
		}
		if err := fc.TickContext(gctx); err != nil {
			// A failed capture cancels gctx; Wait reports its error.
			loopErr = ctx.Err()
			break
		}
	}

	capture.Stop()
	if werr := g.Wait(); werr != nil && loopErr == nil {
		loopErr = werr
	}
	if loopErr != nil {
		return Failed, loopErr
	}

	logging.Challenge("bomb finished: %s after %d ticks", state, cd.tick)
	if state == BombWon {
		return Won, nil
	}

	cd.state = Blinking
	if err := Blink(ctx, env, blinkDuration, blinkInterval); err != nil {
		return Failed, err
	}
	return Failed, nil
}
