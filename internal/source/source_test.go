package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testDebounce = 50 * time.Millisecond
	eventTimeout = 3 * time.Second
	quietPeriod  = 300 * time.Millisecond
)

func TestReadAll(t *testing.T) {
	data, err := ReadAll(strings.NewReader("image-bytes"))
	require.NoError(t, err)
	assert.Equal(t, []byte("image-bytes"), data)
}

func TestReadAll_Error(t *testing.T) {
	cause := errors.New("broken pipe")
	_, err := ReadAll(iotest.ErrReader(cause))

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Empty(t, readErr.Path)
	assert.ErrorIs(t, err, cause)
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o644))

	data, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.png"))
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseTrigger(t *testing.T) {
	tr, err := ParseTrigger("WRITE")
	require.NoError(t, err)
	assert.Equal(t, TriggerWrite, tr)

	_, err = ParseTrigger("delete")
	assert.Error(t, err)
}

func startWatcher(t *testing.T, trigger Trigger) (*Watcher, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := Watch(dir, WatchOptions{Debounce: testDebounce, Trigger: trigger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w, dir
}

func nextEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev, ok := <-w.Events():
		require.True(t, ok, "event channel closed")
		return ev
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(quietPeriod):
	}
}

func TestWatcher_CreateIsDebounced(t *testing.T) {
	w, dir := startWatcher(t, TriggerCreate)

	path := filepath.Join(dir, "shot.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		_, err := f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(testDebounce / 5)
	}
	require.NoError(t, f.Close())

	ev := nextEvent(t, w)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, KindCreate, ev.Kind)

	assertNoEvent(t, w)
}

func TestWatcher_ArrivalOrder(t *testing.T) {
	w, dir := startWatcher(t, TriggerCreate)

	names := []string{"a.png", "b.png", "c.png"}
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
		time.Sleep(testDebounce / 2)
	}

	for _, name := range names {
		assert.Equal(t, filepath.Join(dir, name), nextEvent(t, w).Path)
	}
}

func TestWatcher_CreateTriggerIgnoresWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.png")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := Watch(dir, WatchOptions{Debounce: testDebounce, Trigger: TriggerCreate})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))
	assertNoEvent(t, w)
}

func TestWatcher_WriteTrigger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.png")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	w, err := Watch(dir, WatchOptions{Debounce: testDebounce, Trigger: TriggerWrite})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	ev := nextEvent(t, w)
	assert.Equal(t, path, ev.Path)
	assert.Equal(t, KindWrite, ev.Kind)
}

func TestWatcher_IgnoresDotFilesAndDirectories(t *testing.T) {
	w, dir := startWatcher(t, TriggerCreate)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	assertNoEvent(t, w)
}

func TestWatcher_RemovedBeforeSettling(t *testing.T) {
	dir := t.TempDir()
	w, err := Watch(dir, WatchOptions{Debounce: 200 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	path := filepath.Join(dir, "tmp.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))

	assertNoEvent(t, w)
}

func TestWatch_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	_, err := Watch(path, WatchOptions{})
	assert.Error(t, err)

	_, err = Watch(filepath.Join(t.TempDir(), "missing"), WatchOptions{})
	assert.Error(t, err)
}

func TestWatcher_CloseClosesEvents(t *testing.T) {
	w, _ := startWatcher(t, TriggerCreate)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	select {
	case _, ok := <-w.Events():
		assert.False(t, ok)
	case <-time.After(eventTimeout):
		t.Fatal("event channel not closed")
	}
}
