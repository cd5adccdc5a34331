package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "db", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	run := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, Transition{RunID: run, From: "disabled", To: "username", At: at}))
	require.NoError(t, j.Record(ctx, Transition{RunID: run, From: "username", To: "lightup", Username: "ana", At: at.Add(time.Minute)}))

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)

	want := []Transition{
		{RunID: run, From: "username", To: "lightup", Username: "ana", At: at.Add(time.Minute)},
		{RunID: run, From: "disabled", To: "username", At: at},
	}
	opts := cmp.Options{
		cmpopts.IgnoreFields(Transition{}, "ID"),
		cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) }),
	}
	if diff := cmp.Diff(want, got, opts); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}
	assert.Greater(t, got[0].ID, got[1].ID)
}

func TestRecentLimit(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	run := j.NewRun()
	for i := 0; i < 5; i++ {
		run.Record("a", "b", "")
	}

	got, err := j.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for _, tr := range got {
		assert.Equal(t, run.ID, tr.RunID)
		assert.False(t, tr.At.IsZero())
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	j.NewRun().Record("disabled", "reset", "")
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "reset", got[0].To)
}

func TestRunsHaveDistinctIDs(t *testing.T) {
	j := openJournal(t)
	assert.NotEqual(t, j.NewRun().ID, j.NewRun().ID)
}
