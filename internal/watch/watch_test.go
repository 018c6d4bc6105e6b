package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecensus.ai/internal/census"
)

type countingTrigger struct {
	calls atomic.Int32
}

func (c *countingTrigger) Run(ctx context.Context) (*census.Report, error) {
	c.calls.Add(1)
	return &census.Report{ID: "r"}, nil
}

func TestNew_Validation(t *testing.T) {
	dir := t.TempDir()
	_, err := New(Config{Dir: filepath.Join(dir, "missing")}, &countingTrigger{}, nil)
	require.ErrorIs(t, err, ErrPathNotExist)

	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{Dir: file}, &countingTrigger{}, nil)
	require.ErrorIs(t, err, ErrPathNotDirectory)

	_, err = New(Config{Dir: dir, Include: "[unclosed"}, &countingTrigger{}, nil)
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestWatcher_Matches(t *testing.T) {
	w, err := New(Config{Dir: t.TempDir(), Include: "*.tiles.jsonl*", Exclude: []string{".*"}}, &countingTrigger{}, nil)
	require.NoError(t, err)

	assert.True(t, w.Matches("/data/snapshots/000120.tiles.jsonl.zst"))
	assert.True(t, w.Matches("000120.tiles.jsonl"))
	assert.False(t, w.Matches(".000120.tiles.jsonl.tmp"))
	assert.False(t, w.Matches("notes.txt"))
}

func TestWatcher_DebouncedTrigger(t *testing.T) {
	dir := t.TempDir()
	trig := &countingTrigger{}
	w, err := New(Config{Dir: dir, Include: "*.tiles.jsonl*", Debounce: 100 * time.Millisecond}, trig, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "000001.tiles.jsonl"), []byte("{}\n"), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return trig.calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), trig.calls.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
