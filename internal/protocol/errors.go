package protocol

import (
	"errors"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/tiles"
)

const (
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrCensusBusy     = "E_CENSUS_BUSY"
	ErrUnknownElement = "E_UNKNOWN_ELEMENT"
	ErrMalformedTile  = "E_MALFORMED_TILE"
	ErrNotFound       = "E_NOT_FOUND"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:     {},
	ErrCensusBusy:     {},
	ErrUnknownElement: {},
	ErrMalformedTile:  {},
	ErrNotFound:       {},
	ErrInternal:       {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// CodeForError maps a run failure to its wire code.
func CodeForError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, census.ErrBusy):
		return ErrCensusBusy
	case errors.Is(err, tiles.ErrUnknownElement):
		return ErrUnknownElement
	case errors.Is(err, tiles.ErrMalformedTile):
		return ErrMalformedTile
	default:
		return ErrInternal
	}
}
