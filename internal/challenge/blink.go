package challenge

import (
	"context"
	"time"

	"kanoinit/internal/canvas"
)

// Blink flashes the whole screen between black and white every interval for
// duration.
func Blink(ctx context.Context, env *Env, duration, interval time.Duration) error {
	registerPalette(env.Canvas)
	if interval <= 0 {
		return nil
	}

	repeats := int(duration / interval)
	fc := env.frame(interval)
	pair := pairBlank
	for n := 0; n < repeats; n++ {
		style := env.Canvas.Pair(pair)
		err := env.Canvas.Do(func(p *canvas.Pen) error {
			p.HideCursor()
			rows, _ := p.Dimensions()
			for y := 0; y < rows; y++ {
				if err := p.FillRow(y, style); err != nil {
					return err
				}
			}
			return p.Refresh()
		})
		if err != nil {
			return err
		}

		if pair == pairBlank {
			pair = pairFlash
		} else {
			pair = pairBlank
		}
		if err := fc.TickContext(ctx); err != nil {
			return err
		}
	}
	return nil
}
