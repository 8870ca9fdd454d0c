package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcher_TriggersOnTextFileWrite(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := New(dir, 50*time.Millisecond, func(ctx context.Context, events int) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	w.Start(context.Background())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("content"), 0o644))

	require.Eventually(t, func() bool { return fired.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_DebouncesBurstsIntoOneTrigger(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	var lastCount atomic.Int32
	w, err := New(dir, 100*time.Millisecond, func(ctx context.Context, events int) {
		fired.Add(1)
		lastCount.Store(int32(events))
	}, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	w.Start(context.Background())

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "doc"+string(rune('a'+i))+".txt")
		require.NoError(t, os.WriteFile(name, []byte("content"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	// Give any spurious extra trigger time to fire, then check there was one.
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
	assert.GreaterOrEqual(t, lastCount.Load(), int32(5))
}

func TestWatcher_IgnoresNonTextFiles(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := New(dir, 30*time.Millisecond, func(ctx context.Context, events int) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	w.Start(context.Background())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "binary.pdf"), []byte("pdf"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp.swp"), []byte("swap"), 0o644))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestWatcher_MissingDirFailsFast(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), time.Second, func(context.Context, int) {}, testLogger())
	require.Error(t, err)
}

func TestWatcher_StopBeforeDebouncePreventsTrigger(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := New(dir, 250*time.Millisecond, func(ctx context.Context, events int) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)

	w.Start(context.Background())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("content"), 0o644))
	// Let the event loop record the event, then stop inside the
	// debounce window.
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, fired.Load(), "a pending debounce timer must not fire after Stop")
}

func TestWatcher_NoTriggerAfterContextCancel(t *testing.T) {
	dir := t.TempDir()

	var fired atomic.Int32
	w, err := New(dir, 250*time.Millisecond, func(ctx context.Context, events int) {
		fired.Add(1)
	}, testLogger())
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.txt"), []byte("content"), 0o644))
	time.Sleep(50 * time.Millisecond)
	cancel()

	time.Sleep(400 * time.Millisecond)
	assert.Zero(t, fired.Load(), "a pending debounce timer must not fire with a cancelled context")
}

func TestWatcher_StopIsClean(t *testing.T) {
	w, err := New(t.TempDir(), time.Second, func(context.Context, int) {}, testLogger())
	require.NoError(t, err)
	w.Start(context.Background())
	w.Stop()
}
