package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

// status is a Reader's internal state, mirroring
// original_source/lib/bgpstream_reader.c's bgpstream_reader_status_t.
type status int

const (
	statusValidEntry status = iota
	statusCantOpenDump
	statusCorruptedDump
	statusEmptyDump
	statusFilteredDump
	statusEndOfDump
)

// Reader is a single dump file's producer/one-shot-consumer pair (C4),
// ported from bgpstream_reader.c: an async opener goroutine replaces
// thread_producer, signaling readiness over a close-once channel instead
// of a pthread mutex+cond (spec.md §9, §5).
type Reader struct {
	*zerolog.Logger

	ID string

	Entry queue.Entry

	opts Options

	ready     chan struct{} // closed exactly once, when the opener is done trying
	stream    io.ReadCloser
	dec       *mrtDecoder
	openErr   error
	decodeErr error // set when readNewData hits a mid-dump decode failure

	st status

	successfulRead int // entries read so far, including filtered ones
	validRead      int // entries that passed the interval filter

	current    record.Expander
	recordTime int64

	done bool // a terminal status has been exported; safe to destroy
}

// NewReader creates a Reader for entry and immediately starts its async
// opener goroutine; callers must eventually call Stop.
func NewReader(ctx context.Context, entry queue.Entry, opts Options) *Reader {
	if opts.Logger == nil {
		l := zerolog.Nop()
		opts.Logger = &l
	}
	if opts.Opener == nil {
		opts.Opener = DefaultOpener{}
	}

	id := opts.ReaderID
	if id == "" {
		id = uuid.NewString()
	}

	r := &Reader{
		Logger: opts.Logger,
		ID:     id,
		Entry:  entry,
		opts:   opts,
		ready:  make(chan struct{}),
	}

	go r.open(ctx)
	return r
}

// open is the async opener, ported from thread_producer: up to
// OpenMaxRetries attempts with a doubling backoff starting at
// OpenMinRetryWaitSeconds, closing r.ready exactly once when done (success
// or exhausted retries).
func (r *Reader) open(ctx context.Context) {
	defer close(r.ready)

	wait := time.Duration(OpenMinRetryWaitSeconds) * time.Second
	var lastErr error
	for attempt := 0; attempt < OpenMaxRetries; attempt++ {
		stream, err := r.opts.Opener.Open(ctx, r.Entry.Path)
		if err == nil {
			r.stream = stream
			r.dec = newMrtDecoder(stream)
			return
		}
		lastErr = err
		r.logEvent().Err(err).Int("attempt", attempt+1).Str("path", r.Entry.Path).
			Msg("reader: dump open failed, retrying")

		if attempt == OpenMaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			r.openErr = ctx.Err()
			r.st = statusCantOpenDump
			return
		case <-time.After(wait):
		}
		wait *= 2
	}
	r.openErr = fmt.Errorf("%w: %s: %v", ErrCantOpen, r.Entry.Path, lastErr)
	r.st = statusCantOpenDump
}

func (r *Reader) logEvent() *zerolog.Event {
	return r.Logger.Warn().Str("reader_id", r.ID).Str("project", r.Entry.Project).
		Str("collector", r.Entry.Collector)
}

// Start blocks until the opener has finished its attempt(s) and fetches the
// dump's first significant entry. Must be called exactly once, before any
// call to Advance.
func (r *Reader) Start(store *filter.Store) error {
	<-r.ready
	if r.st == statusCantOpenDump {
		return nil
	}
	return r.readNewData(store)
}

// readNewData ports bgpstream_reader_read_new_data: keep decoding entries
// until one passes the interval filter, or the dump is exhausted/corrupted.
func (r *Reader) readNewData(store *filter.Store) error {
	for {
		payload, recordTime, err := r.dec.next()
		switch {
		case err == io.EOF:
			switch {
			case r.successfulRead == 0:
				r.st = statusEmptyDump
			case r.validRead == 0:
				r.st = statusFilteredDump
			default:
				r.st = statusEndOfDump
			}
			return nil

		case err != nil:
			r.st = statusCorruptedDump
			r.decodeErr = fmt.Errorf("%w: %v", ErrCorrupted, err)
			r.logEvent().Err(r.decodeErr).Str("path", r.Entry.Path).
				Msg("reader: decode error, dump marked corrupted")
			return nil

		default:
			r.successfulRead++
			if store != nil && !store.IntervalPasses(recordTime) {
				continue // filtered by time interval; keep scanning
			}
			r.validRead++
			r.current = payload
			r.recordTime = recordTime
			r.st = statusValidEntry
			return nil
		}
	}
}

// RecordTime returns the current entry's record time; valid only while
// Status reports statusValidEntry.
func (r *Reader) RecordTime() int64 {
	return r.recordTime
}

// Done reports whether this Reader has exported its terminal record and is
// safe to destroy.
func (r *Reader) Done() bool {
	return r.done
}

// Err returns the underlying cause of a statusCantOpenDump or
// statusCorruptedDump terminal status, or nil otherwise. Callers logging a
// Reader's exit typically pair this with the exported Record's Status.
func (r *Reader) Err() error {
	if r.decodeErr != nil {
		return r.decodeErr
	}
	return r.openErr
}

// Advance ports bgpstream_reader_mgr_get_next_record's per-reader half. If
// the current entry is valid, it is exported, then the dump is read ahead
// one step to learn what comes next — but a terminal status discovered by
// that read-ahead (e.g. a mid-dump decode failure) is NOT folded into the
// record just exported. It is left pending and exported as its own record,
// with dump_position end, by the next call to Advance, exactly as the
// original's two-call split emits one corrupted_record per dump rather
// than silently overwriting the last good record's position. Only a clean
// end_of_dump is resolved within the same call, since nothing further will
// ever be exported for it.
func (r *Reader) Advance(store *filter.Store, rec *record.Record) error {
	wasValid := r.st == statusValidEntry
	r.exportInto(rec, wasValid)

	if !wasValid {
		// rec now carries a terminal status: either one Start() discovered
		// before any valid entry ever existed, or one a previous Advance
		// call's read-ahead left pending. Either way this is the final
		// record this Reader will ever produce.
		rec.DumpPosition = record.PositionEnd
		r.done = true
		return nil
	}

	diffBefore := r.successfulRead - r.validRead
	if err := r.readNewData(store); err != nil {
		return err
	}
	diffAfter := r.successfulRead - r.validRead

	if r.st == statusEndOfDump {
		if diffAfter == diffBefore {
			rec.DumpPosition = record.PositionEnd
		}
		r.done = true
	}
	return nil
}

// exportInto ports bgpstream_reader_export_record.
func (r *Reader) exportInto(rec *record.Record, wasValid bool) {
	rec.Project = r.Entry.Project
	rec.Collector = r.Entry.Collector
	rec.DumpKind = r.Entry.Kind
	rec.DumpTime = r.Entry.FileTime

	if wasValid {
		rec.RecordTime = r.recordTime
		rec.Status = record.StatusValid
		rec.Payload = r.current
		if r.validRead == 1 && r.successfulRead == 1 {
			rec.DumpPosition = record.PositionStart
		} else {
			rec.DumpPosition = record.PositionMiddle
		}
		return
	}

	rec.Payload = nil
	switch r.st {
	case statusFilteredDump:
		rec.Status = record.StatusFilteredSource
	case statusEmptyDump:
		rec.Status = record.StatusEmptySource
	case statusCantOpenDump:
		rec.Status = record.StatusCorruptedSource
	case statusCorruptedDump:
		rec.Status = record.StatusCorruptedRecord
	default:
		rec.Status = record.StatusEmptySource
	}
}

// Stop releases the Reader's underlying stream, waiting for the opener
// goroutine to finish first (mirrors pthread_join).
func (r *Reader) Stop() error {
	<-r.ready
	if r.stream != nil {
		return r.stream.Close()
	}
	if r.openErr != nil && !errors.Is(r.openErr, context.Canceled) {
		return r.openErr
	}
	return nil
}
