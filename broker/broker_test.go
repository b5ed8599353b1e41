package broker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
)

func TestBuildQuery(t *testing.T) {
	store := filter.NewStore()
	require.NoError(t, store.Add(filter.KindProject, "routeviews"))
	require.NoError(t, store.Add(filter.KindCollector, "rrc00"))
	store.AddInterval(1000, 2000)

	b := NewBroker(context.Background(), store, DefaultOptions)
	q := b.buildQuery()

	assert.Equal(t, []string{"routeviews"}, q["projects[]"])
	assert.Equal(t, []string{"rrc00"}, q["collectors[]"])
	assert.Equal(t, []string{"1000,2000"}, q["intervals[]"])
	assert.Empty(t, q["dataAddedSince"])

	b.lastResponseTime = 42
	b.currentWindowEnd = 99
	q2 := b.buildQuery()
	assert.Equal(t, "42", q2.Get("dataAddedSince"))
	assert.Equal(t, "99", q2.Get("minInitialTime"))
}

func TestParseResponseSuccess(t *testing.T) {
	body := []byte(`{
		"time": 12345,
		"type": "data",
		"error": null,
		"queryParameters": {},
		"data": {
			"dumpFiles": [
				{"urlType":"simple","url":"http://x/rib.bz2","project":"routeviews","collector":"rrc00","type":"rib","initialTime":1000,"duration":900}
			]
		}
	}`)

	resp, err := parseResponse(body)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), resp.time)
	require.Len(t, resp.dumpFiles, 1)
	assert.Equal(t, "routeviews", resp.dumpFiles[0].project)
	assert.Equal(t, int64(1000), resp.dumpFiles[0].initialTime)
}

func TestParseResponseFatalOnError(t *testing.T) {
	body := []byte(`{"time":1,"type":"data","error":"broker is unhappy","data":{"dumpFiles":[]}}`)
	_, err := parseResponse(body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestParseResponseFatalOnBadType(t *testing.T) {
	body := []byte(`{"time":1,"type":"oops","data":{"dumpFiles":[]}}`)
	_, err := parseResponse(body)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFatal)
}

func TestRefreshPushesFilesAndAdvancesWatermark(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		if hits == 1 {
			w.Write([]byte(`{"time":100,"type":"data","error":null,"data":{"dumpFiles":[
				{"urlType":"simple","url":"http://x/rib","project":"routeviews","collector":"rrc00","type":"rib","initialTime":1000,"duration":900}
			]}}`))
			return
		}
		assert.Equal(t, "100", r.URL.Query().Get("dataAddedSince"))
		w.Write([]byte(`{"time":200,"type":"data","error":null,"data":{"dumpFiles":[]}}`))
	}))
	defer srv.Close()

	store := filter.NewStore()
	opts := DefaultOptions
	opts.BaseURL = srv.URL
	b := NewBroker(context.Background(), store, opts)

	var q queue.Queue
	n, err := b.Refresh(&q)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, int64(100), b.lastResponseTime)
	assert.Equal(t, int64(1900), b.currentWindowEnd)

	n, err = b.Refresh(&q)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int64(200), b.lastResponseTime)
}

func TestRefreshFatalOnMalformedResponseLeavesWatermarkUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	store := filter.NewStore()
	opts := DefaultOptions
	opts.BaseURL = srv.URL
	b := NewBroker(context.Background(), store, opts)
	b.lastResponseTime = 7

	var q queue.Queue
	n, err := b.Refresh(&q)
	require.Error(t, err)
	assert.Equal(t, -1, n)
	assert.Equal(t, int64(7), b.lastResponseTime)
}

func TestFetchTransientFailuresDoNotTripBreaker(t *testing.T) {
	failures := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failures < breakerFailureThreshold {
			failures++
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"time":1,"type":"data","error":null,"data":{"dumpFiles":[]}}`))
	}))
	defer srv.Close()

	store := filter.NewStore()
	opts := DefaultOptions
	opts.BaseURL = srv.URL
	b := NewBroker(context.Background(), store, opts)

	resp, err := b.fetch(b.buildQuery())
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, breakerFailureThreshold, failures, "expected exactly breakerFailureThreshold transient failures before success")
	assert.Equal(t, gobreaker.StateClosed, b.breaker.State(), "a run of transient failures alone must never trip the breaker")
}

func TestFetchFatalFailuresTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"time":1,"type":"data","error":"broker is unhappy","data":{"dumpFiles":[]}}`))
	}))
	defer srv.Close()

	store := filter.NewStore()
	opts := DefaultOptions
	opts.BaseURL = srv.URL
	b := NewBroker(context.Background(), store, opts)

	for i := 0; i < breakerFailureThreshold; i++ {
		_, err := b.fetch(b.buildQuery())
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, b.breaker.State(), "a run of fatal failures must trip the breaker")

	_, err := b.fetch(b.buildQuery())
	assert.ErrorIs(t, err, ErrBreakerOpen)
}

func TestRegistryConstructsBrokerVariant(t *testing.T) {
	store := filter.NewStore()
	cat, err := New(context.Background(), "broker", store, map[string]string{"url": "http://example.invalid"})
	require.NoError(t, err)
	defer cat.Close()
	_, ok := cat.(*Broker)
	assert.True(t, ok)
}

func TestRegistryUnknownVariant(t *testing.T) {
	store := filter.NewStore()
	_, err := New(context.Background(), "nope", store, nil)
	assert.Error(t, err)
}
