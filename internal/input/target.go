package input

import "unicode"

// Target tracks typed progress through a fixed string. Matching is
// case-insensitive and progress never decreases.
type Target struct {
	runes []rune
	pos   int
}

// NewTarget returns a Target for s with no progress.
func NewTarget(s string) *Target {
	return &Target{runes: []rune(s)}
}

// Feed consumes r. It reports whether r matched the next expected rune, in
// which case progress advanced by one.
func (t *Target) Feed(r rune) bool {
	if t.Done() {
		return false
	}
	if unicode.ToLower(r) != unicode.ToLower(t.runes[t.pos]) {
		return false
	}
	t.pos++
	return true
}

// Pos returns the number of runes matched so far.
func (t *Target) Pos() int { return t.pos }

// Len returns the length of the target in runes.
func (t *Target) Len() int { return len(t.runes) }

// Done reports whether the whole target has been typed.
func (t *Target) Done() bool { return t.pos >= len(t.runes) }

// Remaining returns the untyped suffix.
func (t *Target) Remaining() string { return string(t.runes[t.pos:]) }

func (t *Target) String() string { return string(t.runes) }
