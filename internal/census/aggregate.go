// Package census counts canonical tile codes across a world and drives
// one-shot census runs.
package census

import (
	"fmt"
	"sort"

	"tilecensus.ai/internal/tiles"
)

// Entry is one row of a census: a canonical code and how many tiles have it.
type Entry struct {
	Code  tiles.Code `json:"code"`
	Count int        `json:"count"`
}

// Aggregate classifies every tile and returns the per-code counts, most
// frequent first. Equal counts are ordered by code ascending. The first tile
// that fails to classify aborts the pass.
func Aggregate(ts []tiles.Record) ([]Entry, error) {
	return AggregateWith(tiles.Classifier{}, ts)
}

func AggregateWith(c tiles.Classifier, ts []tiles.Record) ([]Entry, error) {
	counts := make(map[tiles.Code]int)
	for i, t := range ts {
		code, err := c.Classify(t)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", i, err)
		}
		counts[code]++
	}

	out := make([]Entry, 0, len(counts))
	for code, n := range counts {
		out = append(out, Entry{Code: code, Count: n})
	}
	SortEntries(out)
	return out, nil
}

// SortEntries orders entries by count descending, then code ascending.
func SortEntries(es []Entry) {
	sort.Slice(es, func(i, j int) bool {
		if es[i].Count != es[j].Count {
			return es[i].Count > es[j].Count
		}
		return es[i].Code < es[j].Code
	})
}
