package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProjectTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, dir := range []string{"Procedures", "Context/General", "Context/Prompt"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}
	return root
}

func startWatcher(t *testing.T, root string, fired *atomic.Int64) *Watcher {
	t.Helper()
	w, err := New(root, Options{DebounceWindow: 50 * time.Millisecond}, func() {
		fired.Add(1)
	})
	require.NoError(t, err)

	go func() { _ = w.Start(context.Background()) }()
	t.Cleanup(func() { _ = w.Stop() })

	// Give the watcher time to register all directories.
	time.Sleep(100 * time.Millisecond)
	return w
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestWatcher_FiresOnProcedureChange(t *testing.T) {
	root := writeProjectTree(t)
	var fired atomic.Int64
	startWatcher(t, root, &fired)

	require.NoError(t, os.WriteFile(filepath.Join(root, "Procedures", "SOP-001.md"), []byte("# New SOP"), 0o644))

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > 0 }),
		"a procedure write must trigger invalidation")
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	root := writeProjectTree(t)
	var fired atomic.Int64
	startWatcher(t, root, &fired)

	// A burst of writes inside one debounce window.
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "Procedures", "SOP-001.md"),
			[]byte("# New SOP rev"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > 0 }))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int64(1), fired.Load(), "burst must coalesce to one invalidation")
}

func TestWatcher_IgnoresPromptFolder(t *testing.T) {
	root := writeProjectTree(t)
	var fired atomic.Int64
	startWatcher(t, root, &fired)

	require.NoError(t, os.WriteFile(filepath.Join(root, "Context", "Prompt", "task.md"),
		[]byte("prompt material"), 0o644))

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, fired.Load(), "Prompt folder changes must not invalidate")
}

func TestWatcher_SeesFilesInNewSubdirectories(t *testing.T) {
	root := writeProjectTree(t)
	var fired atomic.Int64
	startWatcher(t, root, &fired)

	newDir := filepath.Join(root, "Context", "Predicates")
	require.NoError(t, os.MkdirAll(newDir, 0o755))
	require.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > 0 }),
		"creating a context subdirectory is itself a change")

	before := fired.Load()
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(newDir, "k123.md"), []byte("predicate"), 0o644))

	assert.True(t, waitFor(t, 2*time.Second, func() bool { return fired.Load() > before }),
		"files inside the new directory must be watched too")
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := writeProjectTree(t)
	w, err := New(root, Options{}, func() {})
	require.NoError(t, err)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestNew_MissingSubtreeFailsOnStart(t *testing.T) {
	root := t.TempDir() // no Procedures or Context
	w, err := New(root, Options{}, func() {})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background())
	assert.Error(t, err)
}
