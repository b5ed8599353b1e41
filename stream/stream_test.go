package stream

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/bgpfix/bgpfix/mrt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bgpstream/bgpstream/broker"
	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/reader"
	"github.com/bgpstream/bgpstream/record"
	"github.com/bgpstream/bgpstream/rpki"
)

// scriptedCatalogue is a broker.Catalogue test double whose Refresh calls
// walk a fixed script of (entries, count, error) steps, one per call; any
// call past the end of the script repeats the last step.
type scriptedCatalogue struct {
	steps  []scriptStep
	calls  int
	closed bool
}

type scriptStep struct {
	entries []queue.Entry
	count   int
	err     error
}

func (c *scriptedCatalogue) Refresh(q *queue.Queue) (int, error) {
	step := c.steps[0]
	if c.calls < len(c.steps) {
		step = c.steps[c.calls]
	}
	c.calls++
	for _, e := range step.entries {
		q.Push(e)
	}
	return step.count, step.err
}

func (c *scriptedCatalogue) Close() error {
	c.closed = true
	return nil
}

func registerScripted(name string, steps []scriptStep) *scriptedCatalogue {
	cat := &scriptedCatalogue{steps: steps}
	broker.Register(name, func(_ context.Context, _ *filter.Store, _ map[string]string) (broker.Catalogue, error) {
		return cat, nil
	})
	return cat
}

// emptyOpener hands back an already-exhausted stream, so a Reader reaches
// statusEmptyDump on its very first read with no open retries.
type emptyOpener struct{}

func (emptyOpener) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil
}

// stateChangeDump encodes one BGP4MP_STATE_CHANGE_AS4 MRT entry at the
// given record time, the smallest payload the decoder understands.
func stateChangeDump(t *testing.T, recordTime int64) []byte {
	t.Helper()

	var data []byte
	data = binary.BigEndian.AppendUint32(data, 65001) // peer AS
	data = binary.BigEndian.AppendUint32(data, 65002) // local AS
	data = binary.BigEndian.AppendUint16(data, 0)      // interface
	data = binary.BigEndian.AppendUint16(data, 1)      // AFI_IPV4
	data = append(data, 192, 0, 2, 1)                  // peer IP
	data = append(data, 192, 0, 2, 2)                  // local IP
	data = binary.BigEndian.AppendUint16(data, 3)      // old state: Active
	data = binary.BigEndian.AppendUint16(data, 6)      // new state: Established

	m := mrt.NewMrt()
	m.Time = time.Unix(recordTime, 0).UTC()
	m.Type = mrt.BGP4MP
	m.Sub = mrt.BGP4_STATE_CHANGE_AS4
	m.Data = data

	var buf bytes.Buffer
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

// fixedOpener always hands back the same byte stream, regardless of path.
type fixedOpener struct{ data []byte }

func (o fixedOpener) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

// stubAnnotator marks every element Valid and counts its calls.
type stubAnnotator struct{ calls int }

func (s *stubAnnotator) Annotate(_ *record.Element) (rpki.Validity, error) {
	s.calls++
	return rpki.Valid, nil
}

func TestNextRecordAppliesConfiguredAnnotator(t *testing.T) {
	registerScripted("stream-test-rpki", []scriptStep{
		{entries: []queue.Entry{
			{Path: "fake://a", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000, TimeSpan: 900},
		}, count: 1},
		{count: 0},
	})

	ann := &stubAnnotator{}
	s := NewStream(context.Background(), Options{
		CatalogueName: "stream-test-rpki",
		ReaderOpts:    reader.Options{Opener: fixedOpener{data: stateChangeDump(t, 1000)}},
		Annotator:     ann,
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	var out record.Record
	require.NoError(t, s.NextRecord(&out))
	require.Equal(t, record.StatusValid, out.Status)

	elem, ok := out.Generator().NextElement()
	require.True(t, ok)
	assert.Equal(t, string(rpki.Valid), elem.RPKIValidity)
	assert.Equal(t, 1, ann.calls)
}

func TestNextRecordDefaultAnnotatorMarksValidityUnknown(t *testing.T) {
	registerScripted("stream-test-rpki-default", []scriptStep{
		{entries: []queue.Entry{
			{Path: "fake://a", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000, TimeSpan: 900},
		}, count: 1},
		{count: 0},
	})

	s := NewStream(context.Background(), Options{
		CatalogueName: "stream-test-rpki-default",
		ReaderOpts:    reader.Options{Opener: fixedOpener{data: stateChangeDump(t, 1000)}},
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	var out record.Record
	require.NoError(t, s.NextRecord(&out))

	elem, ok := out.Generator().NextElement()
	require.True(t, ok)
	assert.Equal(t, string(rpki.Unknown), elem.RPKIValidity)
}

func TestLifecycleTransitions(t *testing.T) {
	registerScripted("stream-test-lifecycle", []scriptStep{{count: 0}})
	s := NewStream(context.Background(), Options{CatalogueName: "stream-test-lifecycle"})

	assert.ErrorIs(t, s.Stop(), ErrInvalidTransition)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrInvalidTransition)
	assert.ErrorIs(t, s.AddFilter(filter.KindProject, "routeviews"), ErrNotAllocated)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrInvalidTransition)
}

func TestNextRecordEndOfStreamWhenNotLive(t *testing.T) {
	registerScripted("stream-test-eos", []scriptStep{{count: 0}})

	s := NewStream(context.Background(), Options{CatalogueName: "stream-test-eos"})
	require.NoError(t, s.Start())
	defer s.Stop()

	var out record.Record
	err := s.NextRecord(&out)
	require.Error(t, err)
	assert.True(t, IsEndOfStream(err))
}

func TestNextRecordFatalCatalogueError(t *testing.T) {
	boom := assert.AnError
	registerScripted("stream-test-fatal", []scriptStep{{count: -1, err: boom}})

	s := NewStream(context.Background(), Options{CatalogueName: "stream-test-fatal"})
	require.NoError(t, s.Start())
	defer s.Stop()

	var out record.Record
	err := s.NextRecord(&out)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsEndOfStream(err))
}

func TestNextRecordPullsBatchIntoPoolAndEmits(t *testing.T) {
	registerScripted("stream-test-batch", []scriptStep{
		{entries: []queue.Entry{
			{Path: "fake://one", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000, TimeSpan: 900},
		}, count: 1},
		{count: 0},
	})

	s := NewStream(context.Background(), Options{
		CatalogueName: "stream-test-batch",
		ReaderOpts:    reader.Options{Opener: emptyOpener{}},
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	var out record.Record
	err := s.NextRecord(&out)
	require.NoError(t, err)
	assert.Equal(t, record.StatusEmptySource, out.Status)
	assert.Equal(t, "routeviews", out.Project)
	assert.Equal(t, record.DumpUpdate, out.DumpKind)

	// The single admitted Reader is now exhausted; the next call must
	// refresh again and, finding nothing further and no live window, end
	// the stream cleanly.
	err = s.NextRecord(&out)
	require.Error(t, err)
	assert.True(t, IsEndOfStream(err))
}

func TestConfigAppliesFiltersBeforeStart(t *testing.T) {
	registerScripted("stream-test-config", []scriptStep{{count: 0}})

	cfg := &Config{
		Catalogue: CatalogueConfig{Name: "stream-test-config"},
		Filters: FiltersConfig{
			Projects:   []string{"routeviews"},
			Collectors: []string{"rrc00"},
		},
	}
	require.NoError(t, cfg.Validate())

	s := NewStream(context.Background(), Options{})
	require.NoError(t, cfg.Apply(s))
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, []string{"routeviews"}, s.Filters().Projects())
	assert.Equal(t, []string{"rrc00"}, s.Filters().Collectors())
}

func TestConfigValidateRejectsInvertedInterval(t *testing.T) {
	end := int64(50)
	cfg := &Config{
		Catalogue: CatalogueConfig{Name: "broker"},
		Filters: FiltersConfig{
			Intervals: []IntervalConfig{{Begin: 100, End: &end}},
		},
	}
	assert.Error(t, cfg.Validate())
}
