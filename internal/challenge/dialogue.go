package challenge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"

	"kanoinit/internal/asset"
	"kanoinit/internal/canvas"
	"kanoinit/internal/input"
	"kanoinit/internal/logging"
)

const (
	dialogueTick  = 50 * time.Millisecond
	avatarEvery   = 8
	winkEvery     = 10
	avatarGap     = 10
	consoleWidth  = 50
	defaultMaxLen = 30
	compactRows   = 12
	compactCols   = 40
)

// DialogueState is the state of the typewriter dialogue.
type DialogueState int

const (
	Writing DialogueState = iota
	AwaitingInput
	Validating
	ShowingError
	DialogueDone
)

func (s DialogueState) String() string {
	switch s {
	case Writing:
		return "writing"
	case AwaitingInput:
		return "awaiting-input"
	case Validating:
		return "validating"
	case ShowingError:
		return "showing-error"
	case DialogueDone:
		return "done"
	default:
		return fmt.Sprintf("DialogueState(%d)", int(s))
	}
}

// Validator checks a submitted line. It returns the value to keep, or an
// error whose message is typed out before prompting again.
type Validator func(line string) (string, error)

// DialogueConfig describes a scripted conversation ending in a prompt.
type DialogueConfig struct {
	// Script lines are revealed one rune per tick. Pause markers hold.
	Script []string
	// Prompt is typed after the script; input is read right after it.
	Prompt string
	// MaxLen bounds the typed line.
	MaxLen   int
	Validate Validator
	// Compact drops the avatar so the dialogue fits small terminals.
	Compact bool
}

// avatar cycles the judoka frames, winking with the last one.
type avatar struct {
	frames int
	frame  int
	wink   int
}

func (a *avatar) next() int {
	f := a.frame
	a.frame++
	if a.frame >= a.frames-1 {
		a.frame = 0
	}
	a.wink++
	if a.wink == winkEvery {
		a.frame = a.frames - 1
		a.wink = 0
	}
	return f
}

// Dialogue types the script, then reads lines at the prompt until one passes
// validation, and returns the validated value.
func Dialogue(ctx context.Context, env *Env, cfg DialogueConfig) (string, error) {
	cv := env.Canvas
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}
	if cfg.Validate == nil {
		cfg.Validate = func(s string) (string, error) { return strings.TrimSpace(s), nil }
	}

	script := append(append([]string(nil), cfg.Script...), cfg.Prompt)
	textRows := len(script) + 2

	var judoka *asset.Animation
	rows, cols := cv.Dimensions()
	var consoleTop, consoleLeft, avatarTop, avatarLeft int
	if cfg.Compact {
		if err := checkSize(cv, "dialogue", max(compactRows, textRows), max(compactCols, maxTextWidth(script)+2)); err != nil {
			return "", err
		}
		consoleTop = center(rows, textRows)
		consoleLeft = 2
	} else {
		anim, err := env.assets().LoadFrames("judoka")
		if err != nil {
			return "", fmt.Errorf("loading judoka: %w", err)
		}
		judoka = anim
		minCols := anim.Width() + avatarGap + consoleWidth
		if err := checkSize(cv, "dialogue", max(anim.Height()+2, textRows+2), minCols); err != nil {
			return "", err
		}
		avatarTop = (rows - anim.Height()) / 2
		avatarLeft = (cols - minCols) / 2
		consoleTop = avatarTop + 2
		if consoleTop+textRows > rows {
			consoleTop = center(rows, textRows)
		}
		consoleLeft = avatarLeft + anim.Width() + avatarGap
	}
	registerPalette(cv)

	promptRow := consoleTop + len(script) - 1
	errorRow := promptRow + 2
	inputCol := consoleLeft + textWidth(cfg.Prompt)
	maxLen := cfg.MaxLen
	if inputCol+maxLen+1 > cols {
		maxLen = cols - inputCol - 1
	}
	blank := strings.Repeat(" ", cols-consoleLeft)

	if err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		return p.Refresh()
	}); err != nil {
		return "", err
	}
	env.flushInput()

	g, gctx := errgroup.WithContext(ctx)
	state := Writing
	writer := newTypewriter(script)
	writeRow := consoleTop
	av := &avatar{}
	var capture *input.LineCapture
	var value string
	var loopErr error
	cycle := 0
	if judoka != nil {
		av.frames = judoka.Len()
	}
	fc := env.frame(dialogueTick)

	for state != DialogueDone {
		err := cv.Do(func(p *canvas.Pen) error {
			if judoka != nil && cycle%avatarEvery == 0 {
				if err := p.DrawLines(avatarTop, avatarLeft, judoka.Frame(av.next()), tcell.StyleDefault); err != nil {
					return err
				}
			}

			if state == Writing || state == ShowingError {
				gl, draw, done := writer.step()
				if draw {
					row, col := writeRow+gl.Row, consoleLeft+gl.Col
					if err := p.Draw(row, col, string(gl.Rune), tcell.StyleDefault); err != nil {
						return err
					}
					if col+1 < cols {
						if err := p.MoveCursor(row, col+1); err != nil {
							return err
						}
					}
				}
				if done {
					if state == ShowingError {
						// Clear the rejected line, keep the error visible.
						if err := p.Draw(promptRow, consoleLeft, blank, tcell.StyleDefault); err != nil {
							return err
						}
						if err := p.Draw(promptRow, consoleLeft, cfg.Prompt, tcell.StyleDefault); err != nil {
							return err
						}
					}
					state = AwaitingInput
				}
			}
			return p.Refresh()
		})
		if err != nil {
			loopErr = err
			break
		}
		cycle++

		if state == AwaitingInput {
			if capture == nil {
				capture = input.NewLineCapture(cv, env.keys(), input.LineConfig{
					Row:    promptRow,
					Col:    inputCol,
					MaxLen: maxLen,
					Poll:   env.scale(input.DefaultPoll),
				})
				run := capture
				g.Go(func() error { return run.Run(gctx) })
			} else if isDone(capture.Done()) {
				if !capture.Submitted() {
					// Cancelled or failed; Wait reports why.
					loopErr = ctx.Err()
					break
				}
				state = Validating
				v, verr := cfg.Validate(capture.Line())
				capture = nil
				if verr == nil {
					if err := cv.Draw(errorRow, consoleLeft, blank, tcell.StyleDefault); err != nil {
						loopErr = err
						break
					}
					if err := cv.Refresh(); err != nil {
						loopErr = err
						break
					}
					value = v
					state = DialogueDone
					break
				}

				logging.ChallengeDebug("dialogue input rejected: %v", verr)
				if err := cv.Draw(errorRow, consoleLeft, blank, tcell.StyleDefault); err != nil {
					loopErr = err
					break
				}
				state = ShowingError
				writer = newTypewriter([]string{verr.Error()})
				writeRow = errorRow
			}
		}

		if err := fc.TickContext(gctx); err != nil {
			loopErr = ctx.Err()
			break
		}
	}

	if capture != nil {
		capture.Stop()
	}
	if werr := g.Wait(); werr != nil && loopErr == nil {
		loopErr = werr
	}
	if loopErr == nil && state != DialogueDone {
		loopErr = ctx.Err()
		if loopErr == nil {
			loopErr = fmt.Errorf("dialogue ended in state %s", state)
		}
	}
	if loopErr != nil {
		return "", loopErr
	}

	logging.Challenge("dialogue finished after %d ticks", cycle)
	if err := cv.HideCursor(); err != nil {
		return "", err
	}
	return value, nil
}

func isDone(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
