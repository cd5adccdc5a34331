package canvas_test

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"kanoinit/internal/canvas"
	"kanoinit/internal/canvas/canvastest"
)

func newSim(t *testing.T, cols, rows int) (*canvas.Canvas, tcell.SimulationScreen) {
	t.Helper()
	return canvastest.New(t, cols, rows)
}

var rowText = canvastest.Row

func TestDrawAndRefresh(t *testing.T) {
	cv, sim := newSim(t, 20, 5)

	require.NoError(t, cv.Draw(1, 2, "hello", tcell.StyleDefault))
	require.NoError(t, cv.Refresh())

	assert.Equal(t, "  hello", strings.TrimRight(rowText(sim, 1), " "))
}

func TestDrawClipsAtRightEdge(t *testing.T) {
	cv, sim := newSim(t, 10, 3)

	require.NoError(t, cv.Draw(0, 7, "abcdef", tcell.StyleDefault))
	require.NoError(t, cv.Refresh())

	assert.Equal(t, "abc", rowText(sim, 0)[7:])
}

func TestDrawOutsideScreenIsRenderFailure(t *testing.T) {
	cv, _ := newSim(t, 10, 3)

	tests := []struct {
		name     string
		row, col int
	}{
		{"below", 3, 0},
		{"right", 0, 10},
		{"negative row", -1, 0},
		{"negative col", 0, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cv.Draw(tt.row, tt.col, "x", tcell.StyleDefault)
			require.Error(t, err)
			assert.True(t, errors.Is(err, canvas.ErrRenderFailure))

			var re *canvas.RenderError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, "draw", re.Op)
		})
	}
}

func TestDrawLinesStopsAtBottom(t *testing.T) {
	cv, _ := newSim(t, 10, 3)

	err := cv.DrawLines(1, 0, []string{"a", "b", "c"}, tcell.StyleDefault)
	assert.ErrorIs(t, err, canvas.ErrRenderFailure)
}

func TestFillRowAndClear(t *testing.T) {
	cv, sim := newSim(t, 6, 2)

	require.NoError(t, cv.Draw(0, 0, "abcdef", tcell.StyleDefault))
	require.NoError(t, cv.FillRow(0, tcell.StyleDefault))
	require.NoError(t, cv.Refresh())
	assert.Equal(t, "      ", rowText(sim, 0))

	require.NoError(t, cv.Draw(1, 0, "zz", tcell.StyleDefault))
	require.NoError(t, cv.Clear())
	require.NoError(t, cv.Refresh())
	assert.Equal(t, "      ", rowText(sim, 1))
}

func TestCursor(t *testing.T) {
	cv, sim := newSim(t, 10, 4)

	require.NoError(t, cv.MoveCursor(2, 3))
	require.NoError(t, cv.Refresh())
	x, y, visible := sim.GetCursor()
	assert.Equal(t, 3, x)
	assert.Equal(t, 2, y)
	assert.True(t, visible)

	assert.ErrorIs(t, cv.MoveCursor(4, 0), canvas.ErrRenderFailure)
}

func TestPairs(t *testing.T) {
	cv, _ := newSim(t, 10, 4)

	cv.RegisterPair(1, tcell.ColorGreen, tcell.ColorBlack)
	fg, bg, _ := cv.Pair(1).Decompose()
	assert.Equal(t, tcell.ColorGreen, fg)
	assert.Equal(t, tcell.ColorBlack, bg)

	assert.Equal(t, tcell.StyleDefault, cv.Pair(42))
}

func TestDimensions(t *testing.T) {
	cv, _ := newSim(t, 70, 40)

	rows, cols := cv.Dimensions()
	assert.Equal(t, 40, rows)
	assert.Equal(t, 70, cols)
}

func TestReadKey(t *testing.T) {
	cv, sim := newSim(t, 10, 4)

	sim.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	k, ok := cv.ReadKey(time.Second)
	require.True(t, ok)
	assert.True(t, k.IsRune())
	assert.Equal(t, 'x', k.Rune)

	_, ok = cv.ReadKey(10 * time.Millisecond)
	assert.False(t, ok)
}

func TestFlushInput(t *testing.T) {
	cv, sim := newSim(t, 10, 4)

	sim.InjectKey(tcell.KeyRune, 'a', tcell.ModNone)
	sim.InjectKey(tcell.KeyRune, 'b', tcell.ModNone)
	// Let the pump move both events into the key buffer.
	require.Eventually(t, func() bool {
		k, ok := cv.ReadKey(0)
		if !ok {
			return false
		}
		assert.Equal(t, 'a', k.Rune)
		return true
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	cv.FlushInput()
	_, ok := cv.ReadKey(0)
	assert.False(t, ok)
}

func TestCloseIsIdempotentAndStopsPump(t *testing.T) {
	defer goleak.VerifyNone(t)

	sim := tcell.NewSimulationScreen("UTF-8")
	cv, err := canvas.New(sim)
	require.NoError(t, err)

	cv.Close()
	cv.Close()

	err = cv.Draw(0, 0, "x", tcell.StyleDefault)
	require.Error(t, err)
	var re *canvas.RenderError
	require.ErrorAs(t, err, &re)
	assert.True(t, re.Closed)
}

func TestSubWindow(t *testing.T) {
	cv, sim := newSim(t, 20, 5)

	w, err := cv.NewSubWindow(1, 6, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, 6, w.Width())

	err = cv.Do(func(p *canvas.Pen) error {
		for i, r := range "abc" {
			if err := w.Put(p, i, r, tcell.StyleDefault); err != nil {
				return err
			}
		}
		if err := w.CursorTo(p, 3); err != nil {
			return err
		}
		return p.Refresh()
	})
	require.NoError(t, err)

	assert.Equal(t, "    abc", strings.TrimRight(rowText(sim, 2), " "))
	x, y, _ := sim.GetCursor()
	assert.Equal(t, 7, x)
	assert.Equal(t, 2, y)

	err = cv.Do(func(p *canvas.Pen) error { return w.Put(p, 6, 'z', tcell.StyleDefault) })
	assert.ErrorIs(t, err, canvas.ErrRenderFailure)

	err = cv.Do(func(p *canvas.Pen) error {
		if err := w.Erase(p, 1); err != nil {
			return err
		}
		return p.Refresh()
	})
	require.NoError(t, err)
	assert.Equal(t, "    a c", strings.TrimRight(rowText(sim, 2), " "))

	_, err = cv.NewSubWindow(1, 6, 9, 0)
	assert.ErrorIs(t, err, canvas.ErrRenderFailure)
}

// countingScreen flags any overlap between screen mutations.
type countingScreen struct {
	tcell.SimulationScreen
	active   atomic.Int32
	overlaps atomic.Int32
	calls    atomic.Int32
}

func (s *countingScreen) enter() {
	if s.active.Add(1) > 1 {
		s.overlaps.Add(1)
	}
	s.calls.Add(1)
}

func (s *countingScreen) leave() { s.active.Add(-1) }

func (s *countingScreen) SetContent(x, y int, r rune, comb []rune, st tcell.Style) {
	s.enter()
	defer s.leave()
	s.SimulationScreen.SetContent(x, y, r, comb, st)
}

func (s *countingScreen) Show() {
	s.enter()
	defer s.leave()
	s.SimulationScreen.Show()
}

func TestConcurrentWritersNeverOverlap(t *testing.T) {
	screen := &countingScreen{SimulationScreen: tcell.NewSimulationScreen("UTF-8")}
	cv, err := canvas.New(screen)
	require.NoError(t, err)
	defer cv.Close()
	screen.SetSize(40, 10)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			text := strings.Repeat(string(rune('a'+g)), 20)
			for i := 0; i < 200; i++ {
				_ = cv.Draw(g, 0, text, tcell.StyleDefault)
				_ = cv.Refresh()
			}
		}(g)
	}
	wg.Wait()

	assert.Positive(t, screen.calls.Load())
	assert.Zero(t, screen.overlaps.Load())
}

func TestSuspendAndResumeRepaint(t *testing.T) {
	cv, sim := newSim(t, 20, 3)

	require.NoError(t, cv.Draw(0, 0, "before", tcell.StyleDefault))
	require.NoError(t, cv.Refresh())
	require.NoError(t, cv.Suspend())
	require.NoError(t, cv.Suspend())
	require.NoError(t, cv.Resume())
	require.NoError(t, cv.Resume())

	assert.Equal(t, "", strings.TrimRight(rowText(sim, 0), " "))
	require.NoError(t, cv.Draw(1, 0, "after", tcell.StyleDefault))
	require.NoError(t, cv.Refresh())
	assert.Equal(t, "after", strings.TrimRight(rowText(sim, 1), " "))
}

func TestSuspendAfterCloseIsRenderFailure(t *testing.T) {
	cv, _ := newSim(t, 20, 3)
	cv.Close()

	var rerr *canvas.RenderError
	require.ErrorAs(t, cv.Suspend(), &rerr)
	assert.True(t, rerr.Closed)
	require.ErrorAs(t, cv.Resume(), &rerr)
	assert.Equal(t, "resume", rerr.Op)
}
