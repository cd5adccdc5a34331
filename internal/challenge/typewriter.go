package challenge

import "github.com/mattn/go-runewidth"

// Pause is a script marker: the typewriter waits ten ticks and draws nothing.
const Pause = '\a'

// Ticks spent on a rune before the next one is revealed.
const (
	spaceHold = 3
	punctHold = 2
	pauseHold = 10
)

// glyph is one revealed rune. Row is the script line, Index the rune index
// within it and Col its display column.
type glyph struct {
	Row, Col, Index int
	Rune            rune
}

// typewriter reveals a script one rune per tick.
type typewriter struct {
	lines [][]rune
	line  int
	idx   int
	x     int
	wait  int
}

func newTypewriter(lines []string) *typewriter {
	t := &typewriter{lines: make([][]rune, len(lines))}
	for i, l := range lines {
		t.lines[i] = []rune(l)
	}
	return t
}

// step advances one tick. It returns the glyph to draw, if any, and whether
// the whole script has been revealed.
func (t *typewriter) step() (g glyph, draw bool, done bool) {
	if t.wait > 0 {
		t.wait--
		return glyph{}, false, false
	}
	for t.line < len(t.lines) && t.idx >= len(t.lines[t.line]) {
		t.line++
		t.idx = 0
		t.x = 0
	}
	if t.line >= len(t.lines) {
		return glyph{}, false, true
	}

	r := t.lines[t.line][t.idx]
	t.idx++
	switch r {
	case Pause:
		t.wait = pauseHold - 1
		return glyph{}, false, false
	case ' ':
		t.wait = spaceHold - 1
	case '.', ',', '?', '!':
		t.wait = punctHold - 1
	}

	g = glyph{Row: t.line, Col: t.x, Index: t.idx - 1, Rune: r}
	t.x += runeWidth(r)
	return g, true, false
}

func runeWidth(r rune) int {
	if w := runewidth.RuneWidth(r); w > 0 {
		return w
	}
	return 1
}

// textWidth is the display width of s without pause markers.
func textWidth(s string) int {
	w := 0
	for _, r := range s {
		if r == Pause {
			continue
		}
		w += runeWidth(r)
	}
	return w
}

func maxTextWidth(lines []string) int {
	w := 0
	for _, l := range lines {
		if lw := textWidth(l); lw > w {
			w = lw
		}
	}
	return w
}
