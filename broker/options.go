package broker

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Backoff bounds for the broker HTTP fetch, ported verbatim from
// spec.md §4.3.1: "exponential backoff starting at 1 s and doubling to a
// cap of 900 s".
const (
	InitialBackoff = time.Second
	MaxBackoff     = 900 * time.Second
)

// breakerFailureThreshold is the number of consecutive fatal (non-backoff)
// failures that trips the circuit breaker, so a broker that is clearly
// down stops being hammered once per refresh forever (spec.md §9 redesign
// note on the C-source's unbounded retry loop).
const breakerFailureThreshold = 5

// DefaultOptions are the Broker's default options.
var DefaultOptions = Options{
	Logger:  &log.Logger,
	BaseURL: "https://broker.bgpstream.caida.org/v2",
}

// Options configure a Broker.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled

	// BaseURL is the broker service's base URL; "/data" is appended by
	// Refresh.
	BaseURL string

	// Params carries opaque, user-supplied query parameters passed through
	// verbatim on every request (spec.md §4.3.1: "user-supplied opaque
	// parameters").
	Params map[string]string

	// RequestTimeout bounds a single HTTP round trip; zero means the
	// resty client's own default.
	RequestTimeout time.Duration
}
