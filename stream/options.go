package stream

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bgpstream/bgpstream/reader"
	"github.com/bgpstream/bgpstream/rpki"
)

// LiveMinBackoff and LiveMaxBackoff bound the live-mode refresh-and-sleep
// loop: an initial 30s interval doubling to a 150s cap, reset as soon as
// any refresh returns positive (spec.md §4.3.4).
const (
	LiveMinBackoff = 30 * time.Second
	LiveMaxBackoff = 150 * time.Second
)

// DefaultOptions mirrors the teacher's DefaultOptions-plus-NewX(ctx) idiom
// (speaker.DefaultOptions, reader.DefaultOptions).
var DefaultOptions = Options{
	Logger:        &log.Logger,
	CatalogueName: "broker",
	ReaderOpts:    reader.DefaultOptions,
}

// Options configure a Stream; see DefaultOptions.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled

	// CatalogueName selects the registered broker.Catalogue variant
	// ("broker", "singlefile", "csvfile", "sqlite"; spec.md §6 "-d name").
	CatalogueName string
	// CatalogueOpts are the variant's raw "-o key,value" options.
	CatalogueOpts map[string]string

	ReaderOpts reader.Options

	// Annotator validates each emitted Element's (prefix, origin ASN)
	// against an external ROA source, between generation and any
	// element-level filter pass. Defaults to rpki.NoOp, which marks every
	// element rpki.Unknown.
	Annotator rpki.Annotator
}
