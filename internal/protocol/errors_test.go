package protocol

import (
	"errors"
	"fmt"
	"testing"

	"tilecensus.ai/internal/census"
	"tilecensus.ai/internal/tiles"
)

func TestIsKnownCode(t *testing.T) {
	cases := []string{
		"",
		ErrBadRequest,
		ErrCensusBusy,
		ErrUnknownElement,
		ErrMalformedTile,
		ErrNotFound,
		ErrInternal,
	}
	for _, c := range cases {
		if !IsKnownCode(c) {
			t.Fatalf("expected known code: %q", c)
		}
	}
	if IsKnownCode("E_NOT_DEFINED") {
		t.Fatalf("expected unknown code rejected")
	}
}

func TestCodeForError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{census.ErrBusy, ErrCensusBusy},
		{fmt.Errorf("aggregate: tile 3: %w", tiles.ErrUnknownElement), ErrUnknownElement},
		{fmt.Errorf("aggregate: %w", tiles.ErrMalformedTile), ErrMalformedTile},
		{errors.New("disk full"), ErrInternal},
	}
	for _, tc := range cases {
		if got := CodeForError(tc.err); got != tc.want {
			t.Fatalf("CodeForError(%v)=%q want %q", tc.err, got, tc.want)
		}
		if !IsKnownCode(CodeForError(tc.err)) {
			t.Fatalf("CodeForError(%v) returned unknown code", tc.err)
		}
	}
}
