// Package canvastest provides a simulated terminal and a scripted key source
// for tests that drive a canvas.
package canvastest

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"kanoinit/internal/canvas"
)

// New opens a canvas on a cols x rows simulation screen. The canvas is closed
// when the test ends.
func New(t testing.TB, cols, rows int) (*canvas.Canvas, tcell.SimulationScreen) {
	t.Helper()
	sim := tcell.NewSimulationScreen("UTF-8")
	cv, err := canvas.New(sim)
	if err != nil {
		t.Fatalf("canvas.New: %v", err)
	}
	sim.SetSize(cols, rows)
	t.Cleanup(cv.Close)
	return cv, sim
}

// Row returns the text of row y as of the last refresh.
func Row(sim tcell.SimulationScreen, y int) string {
	cells, w, h := sim.GetContents()
	if y < 0 || y >= h {
		return ""
	}
	var b strings.Builder
	for x := 0; x < w; x++ {
		c := cells[y*w+x]
		if len(c.Runes) == 0 {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(c.Runes[0])
	}
	return b.String()
}

// Screen returns every row of the last refresh joined by newlines.
func Screen(sim tcell.SimulationScreen) string {
	_, _, h := sim.GetContents()
	rows := make([]string, h)
	for y := range rows {
		rows[y] = strings.TrimRight(Row(sim, y), " ")
	}
	return strings.Join(rows, "\n")
}

// Keys is a scripted key source. Keys are delivered in order, and ReadKey
// waits for the timeout when the script is empty.
type Keys struct {
	mu    sync.Mutex
	queue []canvas.Key
	reads int
}

// NewKeys returns a source that will deliver the runes of s.
func NewKeys(s string) *Keys {
	k := &Keys{}
	k.Type(s)
	return k
}

// Type appends the runes of s to the script.
func (k *Keys) Type(s string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range s {
		k.queue = append(k.queue, canvas.Key{Code: tcell.KeyRune, Rune: r})
	}
}

// Press appends a special key to the script.
func (k *Keys) Press(code tcell.Key) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.queue = append(k.queue, canvas.Key{Code: code})
}

// Reads returns how many ReadKey calls have been made.
func (k *Keys) Reads() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.reads
}

// ReadKey pops the next scripted key or sleeps for timeout.
func (k *Keys) ReadKey(timeout time.Duration) (canvas.Key, bool) {
	k.mu.Lock()
	k.reads++
	if len(k.queue) > 0 {
		key := k.queue[0]
		k.queue = k.queue[1:]
		k.mu.Unlock()
		return key, true
	}
	k.mu.Unlock()
	time.Sleep(timeout)
	return canvas.Key{}, false
}
