package flow

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"kanoinit/internal/canvas/canvastest"
	"kanoinit/internal/challenge"
	"kanoinit/internal/config"
	"kanoinit/internal/i18n"
	"kanoinit/internal/status"
	"kanoinit/internal/system/systemtest"
	"kanoinit/internal/username"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(t *testing.T, cols, rows int, keys *canvastest.Keys, speed float64) (*challenge.Env, tcell.SimulationScreen) {
	t.Helper()
	cv, sim := canvastest.New(t, cols, rows)
	env := &challenge.Env{Canvas: cv, Rand: rand.New(rand.NewSource(7)), Speed: speed}
	if keys != nil {
		env.Keys = keys
	}
	return env, sim
}

func TestSkipModeRunsWholeFlowWithoutTerminal(t *testing.T) {
	store, _ := openStore(t)
	fake := systemtest.New()
	fake.AddUser("kano")
	sys := fake.Collaborators()

	seq := New(store, NewHandlers(Deps{System: sys, Params: config.FlowParams{Skip: true}}), Options{System: sys, StartDisplayManager: true})
	report, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)

	assert.Equal(t, status.StageUIInit, report.Final)
	assert.Equal(t, "kano1", seq.Status().User())
	assert.Equal(t, []string{
		"CreateUser(kano1)",
		"EnableConsoleAutologin(kano1)",
		"SetDMAutologin(kano1)",
		"EnableDMAutostart()",
		"SetDMAutologin(kano1)",
		"StartDM()",
	}, fake.Calls())
}

func TestPresetUserIsCleaned(t *testing.T) {
	store, _ := openStore(t)
	fake := systemtest.New()
	h := NewHandlers(Deps{System: fake.Collaborators(), Params: config.FlowParams{Skip: true, User: "Ana María"}})

	seq := New(store, Handlers{status.StageUsername: h[status.StageUsername]}, Options{})
	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)
	assert.Equal(t, "AnaMara", seq.Status().User())
}

func TestUsernameResumesAfterCreation(t *testing.T) {
	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageUsername, status.WithUsername("ana")))
	fake := systemtest.New("ana")
	h := NewHandlers(Deps{System: fake.Collaborators()})

	seq := New(store, Handlers{status.StageUsername: h[status.StageUsername]}, Options{})
	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)
	assert.NotContains(t, fake.Calls(), "CreateUser(ana)")
	assert.Equal(t, "ana", seq.Status().User())
}

func TestUsernameCreationFailureStops(t *testing.T) {
	store, _ := openStore(t)
	fake := systemtest.New()
	fake.Fail["CreateUser"] = assert.AnError
	sys := fake.Collaborators()

	seq := New(store, NewHandlers(Deps{System: sys, Params: config.FlowParams{Skip: true}}), Options{System: sys})
	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, status.StageUsername, seq.CurrentStage())
	assert.Empty(t, seq.Status().User())
}

func TestInteractiveUsername(t *testing.T) {
	keys := canvastest.NewKeys("")
	keys.Type("root")
	keys.Press(tcell.KeyEnter)
	keys.Type("Iñaki")
	keys.Press(tcell.KeyEnter)
	keys.Type("Carlos Espacio")
	keys.Press(tcell.KeyEnter)
	env, sim := newEnv(t, 100, 30, keys, 0.01)

	store, _ := openStore(t)
	fake := systemtest.New()
	h := NewHandlers(Deps{Env: env, System: fake.Collaborators(), RainDuration: 50 * time.Millisecond})

	seq := New(store, Handlers{status.StageUsername: h[status.StageUsername]}, Options{})
	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)

	assert.Equal(t, "CarlosEspacio", seq.Status().User())
	assert.Equal(t, []string{"CreateUser(CarlosEspacio)"}, fake.Calls())
	screen := canvastest.Screen(sim)
	assert.Contains(t, screen, "What should I call you?")
	assert.NotContains(t, screen, "Just one word")
}

func TestNameValidatorTranslatesRejections(t *testing.T) {
	es, err := i18n.New("es")
	require.NoError(t, err)
	fake := systemtest.New("ana")
	h := &handlers{Deps: Deps{Printer: es}}
	validate := h.validator(fake.UserExists)

	_, err = validate("")
	require.ErrorIs(t, err, username.ErrValidation)
	assert.Equal(t, "Escribe un nombre chulo.", err.Error())

	_, err = validate("ana")
	require.ErrorIs(t, err, username.ErrValidation)
	assert.Equal(t, es.Sprintf(i18n.NameTaken), err.Error())

	name, err := validate(" Car los ")
	require.NoError(t, err)
	assert.Equal(t, "Carlos", name)
}

func TestInteractiveUsernameInSpanish(t *testing.T) {
	keys := canvastest.NewKeys("")
	keys.Press(tcell.KeyEnter)
	keys.Type("ana")
	keys.Press(tcell.KeyEnter)
	env, sim := newEnv(t, 100, 30, keys, 0.01)
	es, err := i18n.New("es")
	require.NoError(t, err)

	store, _ := openStore(t)
	fake := systemtest.New()
	h := NewHandlers(Deps{Env: env, System: fake.Collaborators(), Printer: es, RainDuration: 50 * time.Millisecond})

	_, err = h[status.StageUsername](context.Background(), &Step{Stage: status.StageUsername, seq: New(store, nil, Options{})})
	require.NoError(t, err)
	screen := canvastest.Screen(sim)
	assert.Contains(t, screen, "Tu nombre: ana")
}

func TestUsernameFallsBackToCompactDialogue(t *testing.T) {
	keys := canvastest.NewKeys("ana")
	keys.Press(tcell.KeyEnter)
	env, sim := newEnv(t, 60, 14, keys, 0.01)

	store, _ := openStore(t)
	fake := systemtest.New()
	h := NewHandlers(Deps{Env: env, System: fake.Collaborators(), RainDuration: 50 * time.Millisecond})

	_, err := h[status.StageUsername](context.Background(), &Step{Stage: status.StageUsername, seq: New(store, nil, Options{})})
	require.NoError(t, err)
	assert.Equal(t, []string{"CreateUser(ana)"}, fake.Calls())
	assert.Contains(t, canvastest.Screen(sim), "Your name: ana")
}

func TestUsernameNeverSkipped(t *testing.T) {
	env, _ := newEnv(t, 20, 6, canvastest.NewKeys(""), 0.01)

	store, _ := openStore(t)
	fake := systemtest.New()
	seq := New(store, NewHandlers(Deps{Env: env, System: fake.Collaborators()}), Options{})

	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.Error(t, err)
	assert.NotErrorIs(t, err, challenge.ErrEnvironment)
	assert.Equal(t, status.StageUsername, seq.CurrentStage())
	assert.Empty(t, fake.Calls())
}

func TestDecorativeStagesSkipOnSmallTerminal(t *testing.T) {
	env, _ := newEnv(t, 30, 10, canvastest.NewKeys(""), 0.01)

	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageLightup, status.WithUsername("ana")))
	fake := systemtest.New("ana")
	sys := fake.Collaborators()
	seq := New(store, NewHandlers(Deps{Env: env, System: sys, RainDuration: 20 * time.Millisecond}), Options{System: sys})

	report, err := seq.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, status.StageUIInit, report.Final)
	assert.Len(t, report.Completed, 5)
	assert.Contains(t, fake.Calls(), "SetDMAutologin(ana)")
}

func TestLettersDefused(t *testing.T) {
	env, sim := newEnv(t, 80, 30, canvastest.NewKeys("startx"), 0.05)

	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageLetters, status.WithUsername("ana")))
	h := NewHandlers(Deps{Env: env})

	outcome, err := h[status.StageLetters](context.Background(), &Step{Stage: status.StageLetters, seq: New(store, nil, Options{})})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNext, outcome)
	assert.Contains(t, canvastest.Screen(sim), "Quick, ana, type startx to escape!")
}

func TestLettersCancelled(t *testing.T) {
	env, _ := newEnv(t, 80, 30, canvastest.NewKeys(""), 0.05)

	store, _ := openStore(t)
	h := NewHandlers(Deps{Env: env})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := h[status.StageLetters](ctx, &Step{Stage: status.StageLetters, seq: New(store, nil, Options{})})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRabbitStage(t *testing.T) {
	env, sim := newEnv(t, 80, 24, nil, 0.01)

	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageRabbit, status.WithUsername("ana")))
	fake := systemtest.New("ana")
	h := NewHandlers(Deps{Env: env, System: fake.Collaborators(), RainDuration: 20 * time.Millisecond})

	_, err := h[status.StageRabbit](context.Background(), &Step{Stage: status.StageRabbit, seq: New(store, nil, Options{})})
	require.NoError(t, err)
	assert.Contains(t, canvastest.Screen(sim), "ana, it's a trap!")
	assert.Equal(t, []string{"RabbitHole(ana)"}, fake.Calls())
}

// shellWatcher records what the screen showed when the shell was opened.
type shellWatcher struct {
	*systemtest.Fake
	sim    tcell.SimulationScreen
	screen string
}

func (w *shellWatcher) RabbitHole(ctx context.Context, name string) error {
	w.screen = canvastest.Screen(w.sim)
	return w.Fake.RabbitHole(ctx, name)
}

func TestRabbitStagePromptsBeforeShell(t *testing.T) {
	env, sim := newEnv(t, 80, 24, nil, 0.01)

	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageRabbit, status.WithUsername("ana")))
	fake := systemtest.New("ana")
	fake.Fail["RabbitHole"] = errors.New("no bash")
	w := &shellWatcher{Fake: fake, sim: sim}
	sys := fake.Collaborators()
	sys.Shell = w
	h := NewHandlers(Deps{Env: env, System: sys, RainDuration: 20 * time.Millisecond})

	_, err := h[status.StageRabbit](context.Background(), &Step{Stage: status.StageRabbit, seq: New(store, nil, Options{})})
	require.NoError(t, err, "a failing shell does not stop the stage")
	assert.Contains(t, w.screen, "Type cd rabbithole")
	assert.Contains(t, canvastest.Screen(sim), "ana, it's a trap!")
	assert.Equal(t, []string{"RabbitHole(ana)"}, fake.Calls())
}

func TestRabbitStageWithoutShell(t *testing.T) {
	env, sim := newEnv(t, 80, 24, nil, 0.01)

	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageRabbit, status.WithUsername("ana")))
	h := NewHandlers(Deps{Env: env, RainDuration: 20 * time.Millisecond})

	_, err := h[status.StageRabbit](context.Background(), &Step{Stage: status.StageRabbit, seq: New(store, nil, Options{})})
	require.NoError(t, err)
	assert.Contains(t, canvastest.Screen(sim), "ana, it's a trap!")
}

func TestLoveNeedsSystem(t *testing.T) {
	store, _ := openStore(t)
	h := NewHandlers(Deps{Params: config.FlowParams{Skip: true}})

	_, err := h[status.StageLove](context.Background(), &Step{Stage: status.StageLove, seq: New(store, nil, Options{})})
	assert.Error(t, err)
}
