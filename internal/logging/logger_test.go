package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	return string(data)
}

func TestUninitializedLoggerIsNoop(t *testing.T) {
	CloseAll()
	require.False(t, IsCategoryEnabled(CategoryFlow))

	// Must not panic.
	Get(CategoryFlow).Info("dropped %d", 1)
	Flow("dropped too")
}

func TestAllCategoriesLog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{Dir: dir, Level: "debug"}))
	t.Cleanup(CloseAll)

	categories := []Category{
		CategoryBoot, CategoryFlow, CategoryStatus, CategoryRender,
		CategoryInput, CategoryChallenge, CategorySystem, CategoryJournal,
	}
	for _, cat := range categories {
		Get(cat).Info("hello from %s", cat)
	}
	CloseAll()

	content := readLog(t, dir)
	for _, cat := range categories {
		if !strings.Contains(content, "hello from "+string(cat)) {
			t.Errorf("expected log line for category %s", cat)
		}
	}
}

func TestCategoryFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{
		Dir:        dir,
		Categories: map[string]bool{"input": false},
	}))
	t.Cleanup(CloseAll)

	require.False(t, IsCategoryEnabled(CategoryInput))
	require.True(t, IsCategoryEnabled(CategoryFlow))

	Get(CategoryInput).Info("secret keystroke")
	Flow("stage started")
	CloseAll()

	content := readLog(t, dir)
	require.NotContains(t, content, "secret keystroke")
	require.Contains(t, content, "stage started")
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{Dir: dir, Level: "warn", JSONFormat: true}))
	t.Cleanup(CloseAll)

	Get(CategoryFlow).Info("quiet")
	Get(CategoryFlow).Warn("loud")
	CloseAll()

	content := readLog(t, dir)
	require.NotContains(t, content, "quiet")
	require.Contains(t, content, `"msg":"loud"`)
}

func TestDebugModeOverridesLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Initialize(Config{Dir: dir, Level: "error", DebugMode: true}))
	t.Cleanup(CloseAll)

	ChallengeDebug("tick %d", 8)
	CloseAll()

	require.Contains(t, readLog(t, dir), "tick 8")
}
