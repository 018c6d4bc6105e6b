package census

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilecensus.ai/internal/tiles"
)

func TestRunner_Run(t *testing.T) {
	src := StaticSource{ID: "w1", Tick: 42, Tiles: []tiles.Record{
		{Segments: []tiles.Segment{ring(tiles.GroupWater)}},
		{Segments: []tiles.Segment{ring(tiles.GroupWater)}},
		{Segments: []tiles.Segment{ring(tiles.GroupForest)}},
	}}
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var seen []string
	sink := SinkFunc(func(ctx context.Context, r *Report) error {
		seen = append(seen, r.ID)
		r.Path = "/tmp/out.csv"
		return nil
	})

	r := NewRunner(src, nil, WithClock(func() time.Time { return clock }), WithSinks(sink))
	rep, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, []string{rep.ID}, seen)
	assert.Equal(t, "w1", rep.WorldID)
	assert.Equal(t, uint64(42), rep.Tick)
	assert.Equal(t, clock, rep.StartedAt)
	assert.Equal(t, 3, rep.Tiles)
	assert.Equal(t, rep.Tiles, rep.Total())
	assert.Equal(t, 2, rep.Distinct())
	assert.Equal(t, "/tmp/out.csv", rep.Path)
	assert.False(t, r.Busy())
}

func TestRunner_BusyGuard(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	src := SourceFunc(func(ctx context.Context) (World, error) {
		close(entered)
		<-release
		return World{ID: "w"}, nil
	})
	r := NewRunner(src, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = r.Run(context.Background())
	}()

	<-entered
	assert.True(t, r.Busy())
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
	require.NoError(t, firstErr)
	assert.False(t, r.Busy())
}

func TestRunner_FailureSkipsSinks(t *testing.T) {
	src := StaticSource{Tiles: []tiles.Record{{Segments: []tiles.Segment{{GroupType: "Mountain", Edges: []int{0}}}}}}
	called := false
	r := NewRunner(src, nil, WithSinks(SinkFunc(func(ctx context.Context, r *Report) error {
		called = true
		return nil
	})))

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, tiles.ErrUnknownElement)
	assert.False(t, called)
	assert.False(t, r.Busy())

	// The guard is released after a failure.
	_, err = r.Run(context.Background())
	require.ErrorIs(t, err, tiles.ErrUnknownElement)
}

func TestRunner_SinkErrorStopsChain(t *testing.T) {
	boom := errors.New("disk full")
	second := false
	r := NewRunner(StaticSource{}, nil, WithSinks(
		SinkFunc(func(ctx context.Context, r *Report) error { return boom }),
		SinkFunc(func(ctx context.Context, r *Report) error { second = true; return nil }),
	))
	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, boom)
	assert.False(t, second)
}

func TestRunner_SourceError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(StaticSource{}, nil)
	_, err := r.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunner_StrictClassifier(t *testing.T) {
	src := StaticSource{Tiles: []tiles.Record{{Segments: []tiles.Segment{
		{GroupType: tiles.GroupForest, Edges: []int{0, 1}},
		{GroupType: tiles.GroupVillage, Edges: []int{1}},
	}}}}
	_, err := NewRunner(src, nil).Run(context.Background())
	require.NoError(t, err)

	_, err = NewRunner(src, nil, WithClassifier(tiles.Classifier{Strict: true})).Run(context.Background())
	require.ErrorIs(t, err, tiles.ErrMalformedTile)
}
