// Package stream implements the Stream Façade (C7): the single object a
// consumer allocates, configures, starts, and drives via NextRecord. It
// owns the Filter Store, Input Queue, Reader Pool, and the active
// Catalogue exclusively (spec.md §4.7: "Filter Store, Input Queue, Reader
// Pool, and active Catalogue are exclusively owned by the Stream
// Façade"), and implements the blocking discipline of §4.3.4 for live
// streams.
package stream

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgpstream/bgpstream/broker"
	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/pool"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
	"github.com/bgpstream/bgpstream/rpki"
)

// state is the Façade's lifecycle position (spec.md §4.7: "{allocated, on,
// off}").
type state int

const (
	stateAllocated state = iota
	stateOn
	stateOff
)

func (s state) String() string {
	switch s {
	case stateAllocated:
		return "allocated"
	case stateOn:
		return "on"
	case stateOff:
		return "off"
	default:
		return "unknown"
	}
}

// Stream is the C7 Stream Façade.
type Stream struct {
	*zerolog.Logger

	ctx  context.Context
	opts Options

	store *filter.Store
	queue *queue.Queue
	pool  *pool.Pool
	cat   broker.Catalogue

	annotate func(*record.Element)

	state       state
	liveBackoff time.Duration
}

// NewStream returns an allocated Stream bound to ctx; ctx bounds every
// Reader and the catalogue's HTTP calls for the Stream's whole lifetime.
func NewStream(ctx context.Context, opts Options) *Stream {
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}
	if opts.CatalogueName == "" {
		opts.CatalogueName = DefaultOptions.CatalogueName
	}
	if opts.Annotator == nil {
		opts.Annotator = rpki.NoOp{}
	}
	registerMetrics()

	s := &Stream{
		Logger: opts.Logger,
		ctx:    ctx,
		opts:   opts,
		store:  filter.NewStore(),
		queue:  &queue.Queue{},
		state:  stateAllocated,
	}
	s.annotate = s.annotateElement
	return s
}

// annotateElement applies the Stream's configured rpki.Annotator to elem,
// logging rather than failing the record on a validator error (an external
// ROA source being unreachable must not stall the whole stream).
func (s *Stream) annotateElement(elem *record.Element) {
	v, err := s.opts.Annotator.Annotate(elem)
	if err != nil {
		s.Warn().Err(err).Msg("stream: rpki annotation failed")
		return
	}
	elem.RPKIValidity = string(v)
}

// Filters exposes the Stream's Filter Store for read access (e.g. by a CLI
// front-end building a DSL error message). Mutating calls should go
// through the Stream's own Add* methods, which enforce the allocated-only
// configuration rule.
func (s *Stream) Filters() *filter.Store {
	return s.store
}

// AddFilter appends one generic filter value; see filter.Store.Add.
func (s *Stream) AddFilter(kind filter.Kind, value string) error {
	if s.state != stateAllocated {
		return ErrNotAllocated
	}
	return s.store.Add(kind, value)
}

// AddInterval appends a time window; end may be filter.Live.
func (s *Stream) AddInterval(begin, end int64) error {
	if s.state != stateAllocated {
		return ErrNotAllocated
	}
	s.store.AddInterval(begin, end)
	return nil
}

// SetRIBPeriod sets the minimum spacing between admitted same-source RIB
// dumps; 0 disables the rule.
func (s *Stream) SetRIBPeriod(seconds int64) error {
	if s.state != stateAllocated {
		return ErrNotAllocated
	}
	s.store.SetRIBPeriod(seconds)
	return nil
}

// Start validates the configured filters and initializes the selected
// catalogue, transitioning allocated→on (spec.md §4.7).
func (s *Stream) Start() error {
	if s.state != stateAllocated {
		return ErrInvalidTransition
	}
	if err := s.store.Validate(); err != nil {
		return err
	}

	cat, err := broker.New(s.ctx, s.opts.CatalogueName, s.store, s.opts.CatalogueOpts)
	if err != nil {
		return err
	}

	s.cat = cat
	s.pool = pool.New(s.ctx, s.store, pool.Options{
		Logger:     s.Logger,
		ReaderOpts: s.opts.ReaderOpts,
	})
	s.liveBackoff = LiveMinBackoff
	s.state = stateOn
	return nil
}

// Stop transitions on→off, closing the Reader Pool and the catalogue. Off
// is terminal; a stopped Stream must be discarded, not restarted.
func (s *Stream) Stop() error {
	if s.state != stateOn {
		return ErrInvalidTransition
	}
	s.state = stateOff

	var firstErr error
	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			firstErr = err
		}
	}
	if s.cat != nil {
		if err := s.cat.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NextRecord fills out with the next record in non-decreasing record_time
// order (rib-before-update at ties), blocking as needed to refresh the
// catalogue. Returns ErrEndOfStream once a non-live stream is exhausted,
// or any fatal catalogue/Reader error (spec.md §4.7's next_record
// algorithm, ported verbatim).
func (s *Stream) NextRecord(out *record.Record) error {
	if s.state != stateOn {
		return ErrNotOn
	}
	out.Reset()
	out.Annotate = s.annotate

	for s.pool.Len() == 0 {
		if err := s.fillQueue(); err != nil {
			return err
		}

		batch := s.queue.TakeReadyBatch()
		queueDepth.Set(float64(s.queue.Len()))
		s.pool.Add(batch)
	}

	ok, err := s.pool.NextRecord(out)
	if err != nil {
		return err
	}
	if !ok {
		return ErrEndOfStream
	}
	recordsEmittedTotal.WithLabelValues(string(out.DumpKind)).Inc()
	return nil
}

// fillQueue refreshes the catalogue until the Input Queue holds at least
// one entry, applying the live-mode blocking discipline of spec.md §4.3.4
// while the catalogue keeps returning 0 with no end in sight.
func (s *Stream) fillQueue() error {
	for s.queue.Len() == 0 {
		n, err := s.cat.Refresh(s.queue)
		queueDepth.Set(float64(s.queue.Len()))

		switch {
		case n < 0:
			brokerRefreshTotal.WithLabelValues(s.opts.CatalogueName, "fatal").Inc()
			return err
		case n == 0:
			brokerRefreshTotal.WithLabelValues(s.opts.CatalogueName, "empty").Inc()
			if !s.store.IsLive() {
				return ErrEndOfStream
			}
			if err := s.sleepBackoff(); err != nil {
				return err
			}
		default:
			brokerRefreshTotal.WithLabelValues(s.opts.CatalogueName, "ok").Inc()
			filesDiscoveredTotal.WithLabelValues(s.opts.CatalogueName).Add(float64(n))
			s.liveBackoff = LiveMinBackoff
		}
	}
	return nil
}

// sleepBackoff waits the current live-mode interval, doubling it for next
// time up to LiveMaxBackoff, or returns the context's error if it's
// cancelled first.
func (s *Stream) sleepBackoff() error {
	s.Debug().Dur("backoff", s.liveBackoff).Msg("stream: catalogue returned no files, sleeping")
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	case <-time.After(s.liveBackoff):
	}
	if s.liveBackoff *= 2; s.liveBackoff > LiveMaxBackoff {
		s.liveBackoff = LiveMaxBackoff
	}
	return nil
}

// IsEndOfStream reports whether err is the clean end-of-stream sentinel,
// as opposed to a fatal catalogue or Reader error.
func IsEndOfStream(err error) bool {
	return errors.Is(err, ErrEndOfStream)
}
