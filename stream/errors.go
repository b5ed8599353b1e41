package stream

import "errors"

var (
	// ErrInvalidTransition is returned by Start/Stop when called outside
	// the lifecycle state that permits them (spec.md §4.7: "allocated→on
	// via start ...; on→off via stop; off terminal").
	ErrInvalidTransition = errors.New("stream: invalid lifecycle transition")

	// ErrNotAllocated is returned by every configuration call once the
	// stream has left the allocated state ("configuration calls are
	// accepted only in allocated").
	ErrNotAllocated = errors.New("stream: configuration only accepted before start")

	// ErrNotOn is returned by NextRecord outside the on state.
	ErrNotOn = errors.New("stream: not started")

	// ErrEndOfStream is NextRecord's sentinel for a clean, non-live
	// exhaustion: the catalogue returned 0 and the stream is not
	// configured live (spec.md §4.7).
	ErrEndOfStream = errors.New("stream: end of stream")
)
