package challenge

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
)

// ImageConfig names a static image and how long it stays on screen.
type ImageConfig struct {
	Name string
	Hold time.Duration
}

// Image draws a centered image and holds it.
func Image(ctx context.Context, env *Env, cfg ImageConfig) error {
	cv := env.Canvas
	img, err := env.assets().LoadImage(cfg.Name)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfg.Name, err)
	}
	if err := checkSize(cv, "image", 40, 70); err != nil {
		return err
	}

	rows, cols := cv.Dimensions()
	err = cv.Do(func(p *canvas.Pen) error {
		p.Clear()
		p.HideCursor()
		top, left := center(rows, img.Height()), center(cols, img.Width())
		if err := p.DrawLines(top, left, img.Frame(0), tcell.StyleDefault); err != nil {
			return err
		}
		return p.Refresh()
	})
	if err != nil {
		return err
	}
	env.flushInput()
	return env.hold(ctx, cfg.Hold)
}
