package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeRecorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *changeRecorder) record(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *changeRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func startWatcher(t *testing.T, path string, rec *changeRecorder) *FloorPlanWatcher {
	t.Helper()
	w, err := NewFloorPlanWatcher(path, 50*time.Millisecond, rec.record)
	require.NoError(t, err)
	done := make(chan struct{})
	go func() {
		w.Run()
		close(done)
	}()
	t.Cleanup(func() {
		_ = w.Close()
		<-done
	})
	return w
}

func TestFloorPlanWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.png")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	rec := &changeRecorder{}
	w := startWatcher(t, path, rec)

	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, w.Path())

	for _, v := range []string{"v2", "v3", "v4"} {
		require.NoError(t, os.WriteFile(path, []byte(v), 0644))
	}

	assert.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, rec.count(), "a burst of writes is reported once")

	rec.mu.Lock()
	assert.Equal(t, abs, rec.paths[0])
	rec.mu.Unlock()
}

func TestFloorPlanWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.png")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	rec := &changeRecorder{}
	startWatcher(t, path, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 0, rec.count())

	// Replacing the file by rename is followed
	tmp := filepath.Join(dir, "plan.png.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("v2"), 0644))
	require.NoError(t, os.Rename(tmp, path))
	assert.Eventually(t, func() bool { return rec.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestNewFloorPlanWatcher_MissingDir(t *testing.T) {
	_, err := NewFloorPlanWatcher(filepath.Join(t.TempDir(), "missing", "plan.png"), 0, func(string) {})
	assert.Error(t, err)
}
