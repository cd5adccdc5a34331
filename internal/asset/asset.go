// Package asset loads the ASCII-art animations and images shown during the
// onboarding. An animation file holds frames separated by a line consisting
// only of "---"; an image file is a single frame.
package asset

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/mattn/go-runewidth"
)

// FrameDelimiter separates frames in an animation file.
const FrameDelimiter = "---"

//go:embed resources/*.txt
var embedded embed.FS

// ErrEmpty is returned for a source that contains no frame at all.
var ErrEmpty = errors.New("animation has no frames")

// Animation is an immutable sequence of frames. A static image is an
// animation with one frame.
type Animation struct {
	frames [][]string
	width  int
	height int
}

// New builds an animation from frames, copying them.
func New(frames [][]string) (*Animation, error) {
	if len(frames) == 0 {
		return nil, ErrEmpty
	}

	a := &Animation{frames: make([][]string, len(frames))}
	for i, frame := range frames {
		a.frames[i] = append([]string(nil), frame...)
		if len(frame) > a.height {
			a.height = len(frame)
		}
		for _, line := range frame {
			if w := runewidth.StringWidth(line); w > a.width {
				a.width = w
			}
		}
	}
	return a, nil
}

// Len returns the number of frames.
func (a *Animation) Len() int { return len(a.frames) }

// Frame returns frame i. The index wraps around so callers can cycle.
func (a *Animation) Frame(i int) []string {
	i %= len(a.frames)
	if i < 0 {
		i += len(a.frames)
	}
	return a.frames[i]
}

// Width is the widest row across all frames, in terminal cells.
func (a *Animation) Width() int { return a.width }

// Height is the tallest frame, in rows.
func (a *Animation) Height() int { return a.height }

// Parse reads a frame-delimited animation.
func Parse(r io.Reader) (*Animation, error) {
	var (
		frames [][]string
		frame  []string
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == FrameDelimiter {
			frames = append(frames, frame)
			frame = nil
			continue
		}
		frame = append(frame, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read animation: %w", err)
	}

	// The last frame need not be terminated by a delimiter.
	if len(frame) > 0 {
		frames = append(frames, frame)
	}

	return New(frames)
}

// ParseImage reads a single-frame image; delimiters are treated as text.
func ParseImage(r io.Reader) (*Animation, error) {
	var rows []string

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		rows = append(rows, strings.TrimRight(sc.Text(), "\r"))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrEmpty
	}

	return New([][]string{rows})
}

// Loader resolves asset names against a filesystem.
type Loader struct {
	fsys fs.FS
}

// NewLoader returns a loader over fsys. A nil fsys selects the embedded assets.
func NewLoader(fsys fs.FS) *Loader {
	if fsys == nil {
		sub, err := fs.Sub(embedded, "resources")
		if err != nil {
			panic(err)
		}
		fsys = sub
	}
	return &Loader{fsys: fsys}
}

// LoadFrames loads the animation stored as name.txt.
func (l *Loader) LoadFrames(name string) (*Animation, error) {
	f, err := l.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", name, err)
	}
	return a, nil
}

// LoadImage loads the single-frame image stored as name.txt.
func (l *Loader) LoadImage(name string) (*Animation, error) {
	f, err := l.open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	a, err := ParseImage(f)
	if err != nil {
		return nil, fmt.Errorf("asset %q: %w", name, err)
	}
	return a, nil
}

func (l *Loader) open(name string) (fs.File, error) {
	if !strings.HasSuffix(name, ".txt") {
		name += ".txt"
	}
	f, err := l.fsys.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to open asset %q: %w", name, err)
	}
	return f, nil
}
