package reader

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Retry constants for the async opener, ported verbatim from
// original_source/lib/bgpstream_reader.c's thread_producer
// (DUMP_OPEN_MAX_RETRIES=5, DUMP_OPEN_MIN_RETRY_WAIT=10, doubling backoff).
const (
	OpenMaxRetries          = 5
	OpenMinRetryWaitSeconds = 10
)

// DefaultOptions mirrors the teacher's DefaultOptions-plus-NewX(ctx) idiom
// (speaker.DefaultOptions).
var DefaultOptions = Options{
	Logger: &log.Logger,
	Opener: DefaultOpener{},
}

// Options configure a Reader; see DefaultOptions.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled

	Opener Opener // how to open a dump's byte stream

	// ReaderID, if non-empty, overrides the auto-generated UUID used for
	// log correlation (reader_id field).
	ReaderID string
}
