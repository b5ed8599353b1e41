package reader

import "errors"

var (
	// ErrCantOpen wraps the last Opener.Open error once every retry in
	// NewReader's async opener has been exhausted.
	ErrCantOpen = errors.New("reader: could not open dump")
	// ErrCorrupted wraps a decode failure readNewData hits mid-dump.
	ErrCorrupted = errors.New("reader: corrupted dump entry")
	ErrClosed    = errors.New("reader: already closed")
	// ErrUnsupported is returned for a recognized but unimplemented
	// MRT type/subtype (e.g. a state-change AFI this decoder doesn't
	// handle).
	ErrUnsupported = errors.New("reader: unsupported MRT type/subtype")
)
