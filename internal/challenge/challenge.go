// Package challenge implements the onboarding mini-games: tick-driven render
// loops over a shared canvas, some of them with a concurrent input capture.
//
// Every challenge checks the terminal size first and returns an
// *EnvironmentError when it cannot fit. Canvas failures are returned
// unchanged and are fatal to the caller.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/asset"
	"kanoinit/internal/canvas"
	"kanoinit/internal/clock"
	"kanoinit/internal/input"
)

// ErrEnvironment marks a challenge that cannot run in the current terminal.
// It is recoverable: the stage skips the challenge.
var ErrEnvironment = errors.New("environment unsuitable for challenge")

// EnvironmentError reports a terminal smaller than a challenge needs.
type EnvironmentError struct {
	Challenge        string
	Rows, Cols       int
	MinRows, MinCols int
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("%s: terminal %dx%d is smaller than %dx%d",
		e.Challenge, e.Rows, e.Cols, e.MinRows, e.MinCols)
}

// Is reports ErrEnvironment as the sentinel for every EnvironmentError.
func (e *EnvironmentError) Is(target error) bool {
	return target == ErrEnvironment
}

// Result is the outcome of an interactive challenge.
type Result int

const (
	Failed Result = iota
	Won
)

func (r Result) String() string {
	if r == Won {
		return "won"
	}
	return "failed"
}

// AssetLoader provides the ASCII art a challenge draws.
type AssetLoader interface {
	LoadFrames(name string) (*asset.Animation, error)
	LoadImage(name string) (*asset.Animation, error)
}

// Env is what every challenge runs against.
type Env struct {
	Canvas *canvas.Canvas
	// Keys defaults to Canvas.
	Keys input.KeySource
	// Assets defaults to the embedded art.
	Assets AssetLoader
	// Rand defaults to a time-seeded source.
	Rand *rand.Rand
	// Speed scales every interval and hold; 1 is normal pace.
	Speed float64
	// Clock defaults to the wall clock.
	Clock clock.Clock
}

func (e *Env) keys() input.KeySource {
	if e.Keys != nil {
		return e.Keys
	}
	return e.Canvas
}

func (e *Env) assets() AssetLoader {
	if e.Assets == nil {
		e.Assets = asset.NewLoader(nil)
	}
	return e.Assets
}

func (e *Env) rng() *rand.Rand {
	if e.Rand == nil {
		e.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e.Rand
}

// scale applies the speed factor to d, never returning less than a
// millisecond for a positive d.
func (e *Env) scale(d time.Duration) time.Duration {
	if e.Speed <= 0 || e.Speed == 1 {
		return d
	}
	s := time.Duration(float64(d) * e.Speed)
	if s < time.Millisecond && d > 0 {
		s = time.Millisecond
	}
	return s
}

func (e *Env) frame(interval time.Duration) *clock.Frame {
	c := e.Clock
	if c == nil {
		c = clock.Real
	}
	return clock.NewWithClock(c, e.scale(interval))
}

// hold waits d (scaled) on the env clock, returning early if ctx ends.
func (e *Env) hold(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	return e.frame(d).TickContext(ctx)
}

// flushInput drops type-ahead when the key source supports it.
func (e *Env) flushInput() {
	if f, ok := e.keys().(interface{ FlushInput() }); ok {
		f.FlushInput()
	}
}

func checkSize(cv *canvas.Canvas, name string, minRows, minCols int) error {
	rows, cols := cv.Dimensions()
	if rows < minRows || cols < minCols {
		return &EnvironmentError{
			Challenge: name,
			Rows:      rows,
			Cols:      cols,
			MinRows:   minRows,
			MinCols:   minCols,
		}
	}
	return nil
}

// Color pairs shared by all challenges.
const (
	pairBlank = iota + 1
	pairFlash
	pairGreen
	pairRed
	pairRain1
	pairRain2
	pairRain3
	pairRainHead
	pairFace
)

// The Kano palette used by the rain.
var (
	kanoOrange = tcell.NewRGBColor(255, 132, 42)
	kanoAmber  = tcell.NewRGBColor(232, 136, 9)
	kanoStone  = tcell.NewRGBColor(156, 135, 107)
	kanoCream  = tcell.NewRGBColor(255, 231, 138)
	kanoWhite  = tcell.NewRGBColor(255, 255, 255)
)

func registerPalette(cv *canvas.Canvas) {
	cv.RegisterPair(pairBlank, tcell.ColorBlack, tcell.ColorBlack)
	cv.RegisterPair(pairFlash, tcell.ColorWhite, tcell.ColorWhite)
	cv.RegisterPair(pairGreen, tcell.ColorGreen, tcell.ColorBlack)
	cv.RegisterPair(pairRed, tcell.ColorRed, tcell.ColorBlack)
	cv.RegisterPair(pairRain1, kanoOrange, tcell.ColorBlack)
	cv.RegisterPair(pairRain2, kanoAmber, tcell.ColorBlack)
	cv.RegisterPair(pairRain3, kanoStone, tcell.ColorBlack)
	cv.RegisterPair(pairRainHead, kanoCream, tcell.ColorBlack)
	cv.RegisterPair(pairFace, kanoWhite, tcell.ColorBlack)
}

// center returns the offset that centers size within total, never negative.
func center(total, size int) int {
	if size >= total {
		return 0
	}
	return (total - size) / 2
}
