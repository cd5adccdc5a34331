package challenge

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
	"kanoinit/internal/logging"
)

const (
	rainTick     = 25 * time.Millisecond
	dropsPerTick = 2
	faceHold     = time.Second
)

// DropPhase is the lifecycle of one rain drop.
type DropPhase int

const (
	Seeding DropPhase = iota
	Brightening
	Fading
	DropDone
)

func (p DropPhase) String() string {
	switch p {
	case Seeding:
		return "seeding"
	case Brightening:
		return "brightening"
	case Fading:
		return "fading"
	case DropDone:
		return "done"
	default:
		return fmt.Sprintf("DropPhase(%d)", int(p))
	}
}

// cell is a single write to the canvas. A zero Rune erases.
type cell struct {
	Row, Col int
	Rune     rune
	Pair     int
}

// drop is a vertical trail that writes lowercase glyphs top-down, overwrites
// them in uppercase and finally erases them.
type drop struct {
	col, row   int
	length     int
	perChar    int
	seedPair   int
	brightPair int

	phase DropPhase
	pos   int
	cycle int
}

// step advances one tick and returns the writes it produced.
func (d *drop) step(rng *rand.Rand) []cell {
	if d.phase == Seeding && d.pos >= d.length {
		d.pos = 0
		d.phase = Brightening
	}
	if d.phase == Brightening && d.pos >= d.length {
		d.pos = 0
		d.phase = Fading
	}
	if d.phase == Fading && d.pos >= d.length {
		d.phase = DropDone
	}
	if d.phase == DropDone {
		return nil
	}

	var out []cell
	if d.cycle%d.perChar == 0 {
		switch d.phase {
		case Seeding:
			out = append(out, cell{Row: d.row + d.pos, Col: d.col, Rune: lower(rng), Pair: d.seedPair})
			d.pos++
			if d.pos < d.length-1 {
				out = append(out, cell{Row: d.row + d.pos, Col: d.col, Rune: lower(rng), Pair: pairRainHead})
			}
		case Brightening:
			out = append(out, cell{Row: d.row + d.pos, Col: d.col, Rune: upper(rng), Pair: d.brightPair})
			d.pos++
		case Fading:
			out = append(out, cell{Row: d.row + d.pos, Col: d.col})
			d.pos++
		}
	}
	d.cycle++
	return out
}

// fade skips straight to erasing whatever the drop has written so far.
func (d *drop) fade() {
	if d.phase == Fading || d.phase == DropDone {
		return
	}
	if d.phase == Seeding {
		d.length = d.pos + 1
	}
	d.pos = 0
	d.phase = Fading
	d.perChar = 1
}

func lower(rng *rand.Rand) rune { return rune('a' + rng.Intn(26)) }
func upper(rng *rand.Rand) rune { return rune('A' + rng.Intn(26)) }

func spawnDrop(rng *rand.Rand, rows, cols int) *drop {
	length := 5 + rng.Intn(rows-5)
	return &drop{
		col:        rng.Intn(cols),
		row:        rng.Intn(rows - length),
		length:     length,
		perChar:    1 + rng.Intn(2),
		seedPair:   pairRain1 + rng.Intn(3),
		brightPair: pairRain1 + rng.Intn(3),
	}
}

// face reveals an image one random line per tick.
type face struct {
	lines   []string
	row     int
	col     int
	pending []int
	shown   []int
}

func newFace(lines []string, rows, cols int) *face {
	f := &face{
		lines: lines,
		row:   center(rows, len(lines)),
		col:   center(cols, maxTextWidth(lines)),
	}
	for i := range lines {
		f.pending = append(f.pending, i)
	}
	return f
}

func (f *face) revealNext(rng *rand.Rand) {
	if len(f.pending) == 0 {
		return
	}
	n := rng.Intn(len(f.pending))
	f.shown = append(f.shown, f.pending[n])
	f.pending = append(f.pending[:n], f.pending[n+1:]...)
}

func (f *face) complete() bool { return len(f.pending) == 0 }

func (f *face) draw(p *canvas.Pen) error {
	style := p.Pair(pairFace)
	for _, n := range f.shown {
		if err := p.Draw(f.row+n, f.col, f.lines[n], style); err != nil {
			return err
		}
	}
	return nil
}

// RainConfig controls the rain.
type RainConfig struct {
	// Duration is how long new drops keep spawning.
	Duration time.Duration
	// Face reveals the Kano face once spawning stops.
	Face bool
}

// Rain runs the falling-glyph effect. It takes no input.
func Rain(ctx context.Context, env *Env, cfg RainConfig) error {
	cv := env.Canvas
	rng := env.rng()

	var fc *face
	minRows, minCols := 8, 10
	var faceLines []string
	if cfg.Face {
		img, err := env.assets().LoadImage("face")
		if err != nil {
			return fmt.Errorf("loading face: %w", err)
		}
		faceLines = img.Frame(0)
		minRows, minCols = img.Height()+2, img.Width()+2
	}
	if err := checkSize(cv, "rain", minRows, minCols); err != nil {
		return err
	}
	registerPalette(cv)

	rows, cols := cv.Dimensions()
	if cfg.Face {
		fc = newFace(faceLines, rows, cols)
	}

	if err := cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		p.HideCursor()
		return p.Refresh()
	}); err != nil {
		return err
	}

	frame := env.frame(rainTick)
	budget := cfg.Duration
	var drops []*drop
	var elapsed time.Duration
	ticks := 0
	for {
		elapsed += rainTick
		spawning := elapsed < budget
		if spawning {
			for i := 0; i < dropsPerTick; i++ {
				drops = append(drops, spawnDrop(rng, rows, cols))
			}
		} else {
			for _, d := range drops {
				d.fade()
			}
		}

		revealing := fc != nil && !spawning
		if len(drops) == 0 && (fc == nil || fc.complete()) {
			break
		}

		err := cv.Do(func(p *canvas.Pen) error {
			live := drops[:0]
			for _, d := range drops {
				for _, c := range d.step(rng) {
					if err := drawCell(p, c); err != nil {
						return err
					}
				}
				if d.phase != DropDone {
					live = append(live, d)
				}
			}
			drops = live

			if revealing {
				fc.revealNext(rng)
				if err := fc.draw(p); err != nil {
					return err
				}
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}
		ticks++

		if err := frame.TickContext(ctx); err != nil {
			return err
		}
	}

	logging.ChallengeDebug("rain finished after %d ticks", ticks)
	if fc != nil {
		if err := env.hold(ctx, faceHold); err != nil {
			return err
		}
	}
	env.flushInput()
	return nil
}

func drawCell(p *canvas.Pen, c cell) error {
	if c.Rune == 0 {
		return p.Draw(c.Row, c.Col, " ", tcell.StyleDefault)
	}
	return p.Draw(c.Row, c.Col, string(c.Rune), p.Pair(c.Pair))
}
