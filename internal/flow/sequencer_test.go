package flow

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"kanoinit/internal/challenge"
	"kanoinit/internal/journal"
	"kanoinit/internal/status"
	"kanoinit/internal/system/systemtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*status.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "status.json")
	s, err := status.Open(path)
	require.NoError(t, err)
	return s, path
}

// tracer records which stage each handler saw persisted when it ran.
type tracer struct {
	store *status.Store
	seen  []string
}

func (tr *tracer) handler(stage status.Stage, outcome Outcome, err error) Handler {
	return func(ctx context.Context, step *Step) (Outcome, error) {
		tr.seen = append(tr.seen, string(step.Stage)+"@"+string(tr.store.Stage()))
		return outcome, err
	}
}

func (tr *tracer) all() Handlers {
	h := Handlers{}
	for _, st := range status.FlowOrder() {
		h[st] = tr.handler(st, OutcomeNext, nil)
	}
	return h
}

func TestRunFromPersistsEachStageFirst(t *testing.T) {
	store, path := openStore(t)
	tr := &tracer{store: store}
	fake := systemtest.New()
	seq := New(store, tr.all(), Options{System: fake.Collaborators(), StartDisplayManager: true})

	report, err := seq.RunFrom(context.Background(), status.StageSwitches)
	require.NoError(t, err)

	assert.Equal(t, []string{"switches@switches", "letters@letters", "rabbit@rabbit", "love@love"}, tr.seen)
	assert.Equal(t, []status.Stage{status.StageSwitches, status.StageLetters, status.StageRabbit, status.StageLove}, report.Completed)
	assert.False(t, report.Reboot)
	assert.Equal(t, status.StageUIInit, report.Final)
	assert.Equal(t, []string{"StartDM()"}, fake.Calls())

	st, err := status.Read(path)
	require.NoError(t, err)
	assert.Equal(t, status.StageUIInit, st.Stage)
}

func TestRunFromRejectsNonFlowStage(t *testing.T) {
	store, _ := openStore(t)
	seq := New(store, nil, Options{})
	_, err := seq.RunFrom(context.Background(), status.StageReset)
	assert.Error(t, err)
	assert.Equal(t, status.StageDisabled, seq.CurrentStage())
}

func TestRunFromPassesThroughMissingHandlers(t *testing.T) {
	store, _ := openStore(t)
	seq := New(store, Handlers{}, Options{})

	report, err := seq.RunFrom(context.Background(), status.StageRabbit)
	require.NoError(t, err)
	assert.Equal(t, []status.Stage{status.StageRabbit, status.StageLove}, report.Completed)
	assert.Equal(t, status.StageUIInit, seq.CurrentStage())
}

func TestEnvironmentErrorSkipsStage(t *testing.T) {
	store, _ := openStore(t)
	tr := &tracer{store: store}
	h := tr.all()
	tooSmall := &challenge.EnvironmentError{Challenge: "binary", Rows: 10, Cols: 20, MinRows: 40, MinCols: 70}
	h[status.StageSwitches] = tr.handler(status.StageSwitches, OutcomeNext, tooSmall)
	seq := New(store, h, Options{})

	report, err := seq.RunFrom(context.Background(), status.StageLightup)
	require.NoError(t, err)
	assert.Equal(t, []status.Stage{status.StageSwitches}, report.Skipped)
	assert.Contains(t, tr.seen, "letters@letters")
	assert.Equal(t, status.StageUIInit, report.Final)
}

func TestHandlerErrorStopsAtStage(t *testing.T) {
	store, path := openStore(t)
	tr := &tracer{store: store}
	h := tr.all()
	boom := errors.New("useradd failed")
	h[status.StageLetters] = tr.handler(status.StageLetters, OutcomeNext, boom)
	seq := New(store, h, Options{})

	report, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, status.StageLetters, report.Final)
	assert.NotContains(t, tr.seen, "rabbit@rabbit")

	// The next run resumes at the failed stage.
	st, err := status.Read(path)
	require.NoError(t, err)
	assert.Equal(t, status.StageLetters, st.Stage)
}

func TestRebootPersistsNextStage(t *testing.T) {
	store, _ := openStore(t)
	tr := &tracer{store: store}
	h := tr.all()
	h[status.StageLightup] = tr.handler(status.StageLightup, OutcomeReboot, nil)
	seq := New(store, h, Options{})

	report, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)
	assert.True(t, report.Reboot)
	assert.Equal(t, status.StageSwitches, report.Final)
	assert.Equal(t, status.StageSwitches, seq.CurrentStage())
	assert.Equal(t, []string{"username@username", "lightup@lightup"}, tr.seen)

	// Rebooting from the last stage lands on ui-init.
	h[status.StageLove] = tr.handler(status.StageLove, OutcomeReboot, nil)
	report, err = seq.RunFrom(context.Background(), status.StageLove)
	require.NoError(t, err)
	assert.True(t, report.Reboot)
	assert.Equal(t, status.StageUIInit, report.Final)
}

func TestRunFromCancelled(t *testing.T) {
	store, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	h := Handlers{
		status.StageUsername: func(ctx context.Context, step *Step) (Outcome, error) {
			cancel()
			return OutcomeNext, nil
		},
	}
	seq := New(store, h, Options{})

	report, err := seq.RunFrom(ctx, status.StageUsername)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, status.StageUsername, report.Final)
}

func TestStepSetUsername(t *testing.T) {
	store, _ := openStore(t)
	h := Handlers{
		status.StageUsername: func(ctx context.Context, step *Step) (Outcome, error) {
			assert.Empty(t, step.Username())
			require.NoError(t, step.SetUsername("ana"))
			assert.Equal(t, "ana", step.Username())
			assert.Equal(t, status.StageUsername, store.Stage())
			return OutcomeNext, nil
		},
	}
	seq := New(store, h, Options{})
	_, err := seq.RunFrom(context.Background(), status.StageUsername)
	require.NoError(t, err)
	assert.Equal(t, "ana", seq.Status().User())
}

func TestRunDispatch(t *testing.T) {
	t.Run("disabled does nothing", func(t *testing.T) {
		store, _ := openStore(t)
		fake := systemtest.New()
		seq := New(store, (&tracer{store: store}).all(), Options{System: fake.Collaborators()})
		report, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, status.StageDisabled, report.Final)
		assert.Empty(t, fake.Calls())
	})

	t.Run("ui-init does nothing", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageUIInit))
		seq := New(store, nil, Options{})
		report, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, status.StageUIInit, report.Final)
	})

	t.Run("reset", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageReset))
		fake := systemtest.New("ana", "bob")
		seq := New(store, nil, Options{System: fake.Collaborators()})

		report, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.True(t, report.Reboot)
		assert.Equal(t, status.StageAddUser, seq.CurrentStage())
		assert.Equal(t, []string{
			"RestoreFactorySettings()",
			"DeleteAllUsers()",
			"EnableConsoleAutologin(root)",
			"UnsetDMAutologin()",
			"DisableDMAutostart()",
		}, fake.Calls())
	})

	t.Run("add-user runs the flow", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageAddUser, status.WithUsername("stale")))
		tr := &tracer{store: store}
		seq := New(store, tr.all(), Options{})

		report, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "username@username", tr.seen[0])
		assert.Len(t, report.Completed, len(status.FlowOrder()))
		assert.Equal(t, status.StageUIInit, report.Final)
		assert.Empty(t, seq.Status().User())
	})

	t.Run("delete-user", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageDeleteUser, status.WithUsername("bob")))
		fake := systemtest.New("ana", "bob")
		seq := New(store, nil, Options{System: fake.Collaborators()})

		_, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{
			"DeleteUser(bob)",
			"EnableConsoleAutologin(ana)",
			"SetDMAutologin(ana)",
			"EnableDMAutostart()",
		}, fake.Calls())
		assert.Equal(t, status.Default(), seq.Status())
	})

	t.Run("delete-user of a missing account", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageDeleteUser, status.WithUsername("ghost")))
		fake := systemtest.New()
		seq := New(store, nil, Options{System: fake.Collaborators()})

		_, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.NotContains(t, fake.Calls(), "DeleteUser(ghost)")
		assert.Equal(t, status.StageDisabled, seq.CurrentStage())
	})

	t.Run("flow stage resumes", func(t *testing.T) {
		store, _ := openStore(t)
		require.NoError(t, store.AdvanceTo(status.StageRabbit))
		tr := &tracer{store: store}
		seq := New(store, tr.all(), Options{})

		_, err := seq.Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"rabbit@rabbit", "love@love"}, tr.seen)
	})
}

func TestRunMaintenanceNeedsSystem(t *testing.T) {
	store, _ := openStore(t)
	require.NoError(t, store.AdvanceTo(status.StageReset))
	seq := New(store, nil, Options{})

	_, err := seq.Run(context.Background())
	assert.Error(t, err)
	assert.Equal(t, status.StageReset, seq.CurrentStage())
}

func TestSchedule(t *testing.T) {
	store, _ := openStore(t)
	fake := systemtest.New("ana")
	seq := New(store, nil, Options{System: fake.Collaborators()})
	ctx := context.Background()

	require.NoError(t, seq.Schedule(ctx, status.StageDeleteUser, "ana"))
	assert.Equal(t, status.StageDeleteUser, seq.CurrentStage())
	assert.Equal(t, "ana", seq.Status().User())
	assert.Equal(t, []string{"DisableDMAutostart()", "UnsetDMAutologin()", "EnableConsoleAutologin(root)"}, fake.Calls())

	fake.Reset()
	err := seq.Schedule(ctx, status.StageReset, "")
	assert.ErrorIs(t, err, status.ErrTaskConflict)
	assert.Equal(t, status.StageDeleteUser, seq.CurrentStage())
	assert.Equal(t, "ana", seq.Status().User())
	assert.Empty(t, fake.Calls())
}

func TestScheduleValidation(t *testing.T) {
	store, _ := openStore(t)
	seq := New(store, nil, Options{System: systemtest.New().Collaborators()})
	ctx := context.Background()

	assert.Error(t, seq.Schedule(ctx, status.StageDeleteUser, ""))
	assert.Error(t, seq.Schedule(ctx, status.StageLetters, ""))
	assert.Equal(t, status.StageDisabled, seq.CurrentStage())

	require.NoError(t, seq.Schedule(ctx, status.StageAddUser, "ignored"))
	assert.Empty(t, seq.Status().User())
}

func TestFinalise(t *testing.T) {
	store, _ := openStore(t)
	fake := systemtest.New("ana")
	seq := New(store, nil, Options{System: fake.Collaborators()})
	ctx := context.Background()

	assert.ErrorIs(t, seq.Finalise(ctx), ErrNothingToFinalise)

	require.NoError(t, store.AdvanceTo(status.StageUIInit, status.WithUsername("ana")))
	require.NoError(t, seq.Finalise(ctx))
	assert.Equal(t, status.Default(), seq.Status())
	assert.Equal(t, []string{"EnableConsoleAutologin(ana)", "SetDMAutologin(ana)", "EnableDMAutostart()"}, fake.Calls())
}

func TestJournalRecordsTransitions(t *testing.T) {
	store, _ := openStore(t)
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()
	run := j.NewRun()

	seq := New(store, Handlers{}, Options{Journal: run})
	_, err = seq.RunFrom(context.Background(), status.StageRabbit)
	require.NoError(t, err)

	got, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "ui-init", got[0].To)
	assert.Equal(t, "love", got[1].To)
	assert.Equal(t, "disabled", got[2].From)
	assert.Equal(t, "rabbit", got[2].To)
	for _, tr := range got {
		assert.Equal(t, run.ID, tr.RunID)
	}
}
