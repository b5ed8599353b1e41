package broker

import "errors"

var (
	// ErrFatal marks a broker response that is malformed in a way retrying
	// cannot fix (spec.md §4.3.1: "parse failures that indicate protocol
	// bugs are surfaced as fatal").
	ErrFatal = errors.New("broker: fatal response")

	// ErrBreakerOpen is returned promptly by Refresh once the circuit
	// breaker has tripped, instead of attempting another HTTP round trip.
	ErrBreakerOpen = errors.New("broker: circuit open, broker appears down")

	ErrClosed = errors.New("broker: already closed")
)
