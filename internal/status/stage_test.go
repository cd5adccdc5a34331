package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlowOrder(t *testing.T) {
	assert.Equal(t, []Stage{"username", "lightup", "switches", "letters", "rabbit", "love"}, FlowOrder())

	order := FlowOrder()
	order[0] = "mutated"
	assert.Equal(t, StageUsername, FlowOrder()[0])
}

func TestStageKinds(t *testing.T) {
	for _, s := range FlowOrder() {
		assert.True(t, s.IsFlow(), s)
		assert.False(t, s.IsMaintenance(), s)
	}
	for _, s := range []Stage{StageDisabled, StageReset, StageDeleteUser, StageAddUser} {
		assert.True(t, s.IsMaintenance(), s)
		assert.False(t, s.IsFlow(), s)
	}
	assert.False(t, StageUIInit.IsFlow())
	assert.False(t, StageUIInit.IsMaintenance())
	assert.True(t, StageUIInit.Valid())
	assert.False(t, Stage("startx").Valid())
}

func TestFlowFrom(t *testing.T) {
	rest, err := FlowFrom(StageLetters)
	require.NoError(t, err)
	assert.Equal(t, []Stage{StageLetters, StageRabbit, StageLove}, rest)

	_, err = FlowFrom(StageReset)
	assert.Error(t, err)
}

func TestParseStage(t *testing.T) {
	s, err := ParseStage("delete-user")
	require.NoError(t, err)
	assert.Equal(t, StageDeleteUser, s)

	_, err = ParseStage("swiches")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStage))

	var unknown *UnknownStageError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, StageSwitches, unknown.Suggestion)
	assert.Contains(t, err.Error(), `did you mean "switches"`)
}

func TestParseStageNoSuggestion(t *testing.T) {
	_, err := ParseStage("completely-unrelated")
	var unknown *UnknownStageError
	require.True(t, errors.As(err, &unknown))
	assert.Empty(t, unknown.Suggestion)
	assert.NotContains(t, err.Error(), "did you mean")
}
