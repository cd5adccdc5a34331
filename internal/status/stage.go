package status

import (
	"errors"
	"fmt"

	"github.com/agnivade/levenshtein"
)

// Stage names one step of onboarding, or a pending maintenance task.
type Stage string

// Flow stages, in the order they run.
const (
	StageUsername Stage = "username"
	StageLightup  Stage = "lightup"
	StageSwitches Stage = "switches"
	StageLetters  Stage = "letters"
	StageRabbit   Stage = "rabbit"
	StageLove     Stage = "love"
)

// StageUIInit hands over to the graphical onboarding after the last flow
// stage. Finalising it returns the record to StageDisabled.
const StageUIInit Stage = "ui-init"

// Maintenance stages.
const (
	StageDisabled   Stage = "disabled"
	StageReset      Stage = "reset"
	StageDeleteUser Stage = "delete-user"
	StageAddUser    Stage = "add-user"
)

var flowOrder = []Stage{StageUsername, StageLightup, StageSwitches, StageLetters, StageRabbit, StageLove}

var maintenance = []Stage{StageDisabled, StageReset, StageDeleteUser, StageAddUser}

// FlowOrder returns the flow stages in order.
func FlowOrder() []Stage {
	return append([]Stage(nil), flowOrder...)
}

// AllStages returns every known stage.
func AllStages() []Stage {
	all := FlowOrder()
	all = append(all, StageUIInit)
	return append(all, maintenance...)
}

func (s Stage) String() string { return string(s) }

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, st := range AllStages() {
		if s == st {
			return true
		}
	}
	return false
}

// IsFlow reports whether s is one of the ordered flow stages.
func (s Stage) IsFlow() bool { return s.flowIndex() >= 0 }

// IsMaintenance reports whether s is a maintenance stage.
func (s Stage) IsMaintenance() bool {
	for _, st := range maintenance {
		if s == st {
			return true
		}
	}
	return false
}

func (s Stage) flowIndex() int {
	for i, st := range flowOrder {
		if s == st {
			return i
		}
	}
	return -1
}

// FlowFrom returns the flow stages starting at s.
func FlowFrom(s Stage) ([]Stage, error) {
	i := s.flowIndex()
	if i < 0 {
		return nil, fmt.Errorf("%q is not a flow stage", s)
	}
	return append([]Stage(nil), flowOrder[i:]...), nil
}

// ErrUnknownStage is returned for names that are not stages.
var ErrUnknownStage = errors.New("unknown stage")

// UnknownStageError carries the closest known stage name, if any.
type UnknownStageError struct {
	Name       string
	Suggestion Stage
}

func (e *UnknownStageError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown stage %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown stage %q", e.Name)
}

func (e *UnknownStageError) Is(target error) bool { return target == ErrUnknownStage }

// maxSuggestDistance bounds how different a suggestion may be.
const maxSuggestDistance = 3

// ParseStage converts a name into a Stage.
func ParseStage(name string) (Stage, error) {
	s := Stage(name)
	if s.Valid() {
		return s, nil
	}

	best, bestDist := Stage(""), maxSuggestDistance+1
	for _, st := range AllStages() {
		if d := levenshtein.ComputeDistance(name, string(st)); d < bestDist {
			best, bestDist = st, d
		}
	}
	return "", &UnknownStageError{Name: name, Suggestion: best}
}
