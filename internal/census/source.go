package census

import (
	"context"

	"tilecensus.ai/internal/tiles"
)

// World is a materialized view of the placed tiles at one tick.
type World struct {
	ID    string
	Tick  uint64
	Tiles []tiles.Record
}

// Source supplies the placed tiles for a run. It stands in for the host
// world lookup so runs can be driven without a live world.
type Source interface {
	Load(ctx context.Context) (World, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (World, error)

func (f SourceFunc) Load(ctx context.Context) (World, error) { return f(ctx) }

// StaticSource always returns the same world.
type StaticSource World

func (s StaticSource) Load(ctx context.Context) (World, error) {
	if err := ctx.Err(); err != nil {
		return World{}, err
	}
	return World(s), nil
}
