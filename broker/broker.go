// Package broker implements the Broker catalogue (C3): the HTTP data
// interface that answers "which dump files cover this request", queried
// incrementally and retried with exponential backoff, grounded on
// original_source/lib/datasources/bgpstream_datasource_broker.c's query
// construction (projects[]/collectors[]/types[]/intervals[], and the
// second-refresh-onward dataAddedSince/minInitialTime pair) and response
// handling (spec.md §4.3.1).
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

// Broker is the C3 Catalogue's broker variant: it builds a query from the
// bound Filter Store, fetches /data, and pushes returned dump files onto
// the Input Queue.
type Broker struct {
	*zerolog.Logger

	ctx   context.Context
	store *filter.Store
	opts  Options

	client  *resty.Client
	breaker *gobreaker.CircuitBreaker

	lastResponseTime int64
	currentWindowEnd int64
}

// NewBroker returns a Broker bound to store, which must not be mutated
// concurrently with Refresh calls (the Filter Store is read-only once a
// stream has started; spec.md §4.1).
func NewBroker(ctx context.Context, store *filter.Store, opts Options) *Broker {
	b := &Broker{ctx: ctx, store: store, opts: opts}
	if opts.Logger != nil {
		b.Logger = opts.Logger
	} else {
		l := zerolog.Nop()
		b.Logger = &l
	}

	client := resty.New().SetBaseURL(opts.BaseURL)
	if opts.RequestTimeout > 0 {
		client.SetTimeout(opts.RequestTimeout)
	}
	b.client = client

	b.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "broker",
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
	})
	return b
}

// Refresh enumerates newly relevant files and pushes them onto q, per the
// catalogue contract shared by all variants (spec.md §4.3): returns the
// count pushed, 0 meaning none now, negative meaning fatal.
func (b *Broker) Refresh(q *queue.Queue) (int, error) {
	query := b.buildQuery()

	resp, err := b.fetch(query)
	if err != nil {
		b.Warn().Err(err).Msg("broker refresh failed")
		return -1, err
	}

	pushed := 0
	for _, f := range resp.dumpFiles {
		entry := queue.Entry{
			Path:      f.url,
			Project:   f.project,
			Collector: f.collector,
			Kind:      record.DumpKind(f.kind),
			FileTime:  f.initialTime,
			TimeSpan:  f.duration,
		}
		if q.Push(entry) {
			pushed++
		}
		if end := f.initialTime + f.duration; end > b.currentWindowEnd {
			b.currentWindowEnd = end
		}
	}

	// Committing last_response_time only here, after the whole response
	// parsed cleanly, is what keeps a partial/malformed response from
	// silently advancing the incremental-query watermark (spec.md
	// §4.3.1: "Only fully parsed responses are committed").
	b.lastResponseTime = resp.time

	return pushed, nil
}

// buildQuery assembles the /data query parameters from the bound Filter
// Store, the configured opaque parameters, and (from the second refresh
// onward) the incremental dataAddedSince/minInitialTime pair.
func (b *Broker) buildQuery() url.Values {
	q := url.Values{}
	for _, p := range b.store.Projects() {
		q.Add("projects[]", p)
	}
	for _, c := range b.store.Collectors() {
		q.Add("collectors[]", c)
	}
	for _, k := range b.store.DumpKinds() {
		q.Add("types[]", k)
	}
	for _, iv := range b.store.Intervals() {
		q.Add("intervals[]", fmt.Sprintf("%d,%d", iv.Begin, iv.End))
	}
	for k, v := range b.opts.Params {
		q.Set(k, v)
	}
	if b.lastResponseTime > 0 {
		q.Set("dataAddedSince", strconv.FormatInt(b.lastResponseTime, 10))
	}
	if b.currentWindowEnd > 0 {
		q.Set("minInitialTime", strconv.FormatInt(b.currentWindowEnd, 10))
	}
	return q
}

// fetch performs the HTTP round trip, retried with exponential backoff
// (spec.md §4.3.1: 1s initial, 900s cap) and circuit-broken against runs
// of fatal failures only. Ordinary transient failures — a network error
// from doRequest, or a parse error that doesn't indicate a protocol bug —
// are retried by the backoff loop but never counted against the breaker,
// so a broker blipping through a handful of timeouts never trips it; only
// ErrFatal, the "ask is malformed in a way retrying can't fix" outcome,
// does (spec.md §9 redesign note, SPEC_FULL.md: "the breaker trips after a
// run of fatal (non-backoff) failures").
func (b *Broker) fetch(q url.Values) (*response, error) {
	var resp *response

	op := func() error {
		var transientErr error
		raw, err := b.breaker.Execute(func() (interface{}, error) {
			body, derr := b.doRequest(q)
			if derr != nil {
				transientErr = derr
				return nil, nil
			}
			parsed, perr := parseResponse(body)
			if perr != nil && !errors.Is(perr, ErrFatal) {
				transientErr = perr
				return nil, nil
			}
			return parsed, perr
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrBreakerOpen)
			}
			// Only a fatal parse error reaches the breaker's failure count,
			// so any error surfacing here is fatal and not worth retrying.
			return backoff.Permanent(err)
		}
		if transientErr != nil {
			return transientErr
		}
		resp = raw.(*response)
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = InitialBackoff
	bo.Multiplier = 2
	bo.MaxInterval = MaxBackoff
	bo.MaxElapsedTime = 0

	if err := backoff.Retry(op, backoff.WithContext(bo, b.ctx)); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close releases the broker's HTTP transport. The Broker is unusable
// after Close returns.
func (b *Broker) Close() error {
	b.client.GetClient().CloseIdleConnections()
	return nil
}

func (b *Broker) doRequest(q url.Values) ([]byte, error) {
	req := b.client.R().SetContext(b.ctx).SetQueryParamsFromValues(q)
	resp, err := req.Get("/data")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("broker: unexpected HTTP status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// dumpFile is one entry of the broker's data.dumpFiles array.
type dumpFile struct {
	project, collector, kind, url string
	initialTime, duration         int64
}

// response is a fully parsed broker reply.
type response struct {
	time      int64
	dumpFiles []dumpFile
}

// parseResponse decodes body without a full encoding/json struct walk,
// matching the teacher's own preference for jsonparser on hot-path array
// decoding (attrs/community.go's FromJSON).
func parseResponse(body []byte) (*response, error) {
	if errVal, dataType, _, err := jsonparser.Get(body, "error"); err == nil && dataType != jsonparser.Null && len(errVal) > 0 {
		return nil, fmt.Errorf("%w: broker reported error: %s", ErrFatal, errVal)
	}

	typ, err := jsonparser.GetString(body, "type")
	if err != nil || typ != "data" {
		return nil, fmt.Errorf("%w: unexpected response type %q", ErrFatal, typ)
	}

	t, err := jsonparser.GetInt(body, "time")
	if err != nil {
		return nil, fmt.Errorf("%w: missing time: %v", ErrFatal, err)
	}

	resp := &response{time: t}
	var parseErr error
	_, err = jsonparser.ArrayEach(body, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		f, ferr := parseDumpFile(value)
		if ferr != nil {
			parseErr = ferr
			return
		}
		resp.dumpFiles = append(resp.dumpFiles, f)
	}, "data", "dumpFiles")
	if err != nil && !errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return nil, fmt.Errorf("%w: dumpFiles: %v", ErrFatal, err)
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return resp, nil
}

func parseDumpFile(value []byte) (dumpFile, error) {
	urlType, err := jsonparser.GetString(value, "urlType")
	if err != nil || urlType != "simple" {
		return dumpFile{}, fmt.Errorf("%w: unsupported urlType %q", ErrFatal, urlType)
	}
	fileURL, err := jsonparser.GetString(value, "url")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing url: %v", ErrFatal, err)
	}
	project, err := jsonparser.GetString(value, "project")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing project: %v", ErrFatal, err)
	}
	collector, err := jsonparser.GetString(value, "collector")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing collector: %v", ErrFatal, err)
	}
	kind, err := jsonparser.GetString(value, "type")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing type: %v", ErrFatal, err)
	}
	initialTime, err := jsonparser.GetInt(value, "initialTime")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing initialTime: %v", ErrFatal, err)
	}
	duration, err := jsonparser.GetInt(value, "duration")
	if err != nil {
		return dumpFile{}, fmt.Errorf("%w: missing duration: %v", ErrFatal, err)
	}
	return dumpFile{
		project:     project,
		collector:   collector,
		kind:        kind,
		url:         fileURL,
		initialTime: initialTime,
		duration:    duration,
	}, nil
}
