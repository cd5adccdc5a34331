// Package username validates the name typed during onboarding and derives
// unique names for unattended setups.
package username

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"kanoinit/internal/i18n"
)

// MaxLength is the longest accepted username.
const MaxLength = 25

// Fallback is used when no usable name is available.
const Fallback = "kano"

// ErrValidation matches every *ValidationError.
var ErrValidation = errors.New("invalid username")

var alnum = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// Reason says which rule a name broke.
type Reason int

const (
	Empty Reason = iota + 1
	Charset
	Taken
	TooLong
)

// ValidationError describes a rejected name.
type ValidationError struct {
	Name   string
	Reason Reason
	// Over is how many characters past MaxLength, for TooLong.
	Over int
}

func (e *ValidationError) Error() string {
	return e.Message(i18n.Default())
}

// Message renders the rejection in p's language.
func (e *ValidationError) Message(p *i18n.Printer) string {
	switch e.Reason {
	case Empty:
		return p.Sprintf(i18n.NameEmpty)
	case Charset:
		return p.Sprintf(i18n.NameCharset)
	case Taken:
		return p.Sprintf(i18n.NameTaken)
	case TooLong:
		return p.Sprintf(i18n.NameTooLong, e.Over)
	}
	return "invalid username"
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ExistsFunc reports whether an account already uses name.
type ExistsFunc func(name string) bool

// Validate cleans name and checks it, in order: non-empty, one word of ASCII
// letters and digits, not taken, at most MaxLength long. Spaces are removed
// before checking. A nil exists treats every name as free.
func Validate(name string, exists ExistsFunc) (string, error) {
	name = strings.Join(strings.Fields(name), "")

	switch {
	case name == "":
		return "", &ValidationError{Name: name, Reason: Empty}
	case !alnum.MatchString(name):
		return "", &ValidationError{Name: name, Reason: Charset}
	case exists != nil && exists(name):
		return "", &ValidationError{Name: name, Reason: Taken}
	case len(name) > MaxLength:
		return "", &ValidationError{Name: name, Reason: TooLong, Over: len(name) - MaxLength}
	}
	return name, nil
}

// MakeUnique turns name into a valid username that exists does not report.
// Characters outside [a-zA-Z0-9] are dropped; an empty result becomes
// Fallback. Taken names get the smallest free numeric suffix, trimming the
// base to stay within MaxLength.
func MakeUnique(name string, exists ExistsFunc) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x80 && alnum.MatchString(string(r)) {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if base == "" {
		base = Fallback
	}
	if len(base) > MaxLength {
		base = base[:MaxLength]
	}
	if exists == nil || !exists(base) {
		return base
	}

	for i := 1; ; i++ {
		suffix := strconv.Itoa(i)
		stem := base
		if len(stem)+len(suffix) > MaxLength {
			stem = stem[:MaxLength-len(suffix)]
		}
		if candidate := stem + suffix; !exists(candidate) {
			return candidate
		}
	}
}
