package tiles

import "fmt"

// Classifier maps placed tiles to canonical codes.
//
// By default overlapping edge claims follow last-writer-wins in segment
// order. Strict rejects them with ErrMalformedTile instead.
type Classifier struct {
	Strict bool
}

// Classify uses the default (non-strict) classifier.
func Classify(t Record) (Code, error) {
	return Classifier{}.Classify(t)
}

// Classify returns the rotation-invariant code of t. A station tile is
// "SSSSSS" regardless of its other segments.
func (c Classifier) Classify(t Record) (Code, error) {
	var buf [EdgeCount]byte
	if IsTrainStation(t) {
		for i := range buf {
			buf[i] = SymbolStation
		}
		return Code(Canonicalize(string(buf[:]))), nil
	}
	for i := range buf {
		buf[i] = SymbolGeneric
	}

	var claimed [EdgeCount]bool
	for si, s := range t.Segments {
		// An edgeless segment contributes nothing, whatever its type.
		if len(s.Edges) == 0 {
			continue
		}
		el, err := ElementFor(s.GroupType, s.Hybrid)
		if err != nil {
			return "", fmt.Errorf("tile %s segment %d: %w", t.label(), si, err)
		}
		sym := el.Code()
		for _, e := range s.Edges {
			if e < 0 || e >= EdgeCount {
				return "", fmt.Errorf("%w: tile %s segment %d: edge %d out of range", ErrMalformedTile, t.label(), si, e)
			}
			if c.Strict && claimed[e] {
				return "", fmt.Errorf("%w: tile %s segment %d: edge %d already claimed", ErrMalformedTile, t.label(), si, e)
			}
			claimed[e] = true
			buf[e] = sym
		}
	}
	return Code(Canonicalize(string(buf[:]))), nil
}

// IsTrainStation reports whether t carries both a full-perimeter water ring
// and a full-perimeter track ring. The two may be different segments.
func IsTrainStation(t Record) bool {
	var water, train bool
	for _, s := range t.Segments {
		if s.SelfEdgeCount != EdgeCount {
			continue
		}
		switch s.GroupType {
		case GroupWater:
			water = true
		case GroupTrain:
			train = true
		}
	}
	return water && train
}

func (t Record) label() string {
	if t.ID != "" {
		return t.ID
	}
	return fmt.Sprintf("(%d,%d)", t.Q, t.R)
}
