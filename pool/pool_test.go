package pool

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/bgpfix/bgpfix/mrt"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/reader"
	"github.com/bgpstream/bgpstream/record"
)

// stateChangeDump encodes one BGP4MP_STATE_CHANGE_AS4 MRT entry at the
// given record time, the smallest payload the decoder understands.
func stateChangeDump(t *testing.T, recordTime int64) []byte {
	t.Helper()

	var data []byte
	data = binary.BigEndian.AppendUint32(data, 65001)  // peer AS
	data = binary.BigEndian.AppendUint32(data, 65002)  // local AS
	data = binary.BigEndian.AppendUint16(data, 0)       // interface
	data = binary.BigEndian.AppendUint16(data, 1)       // AFI_IPV4
	data = append(data, 192, 0, 2, 1)                   // peer IP
	data = append(data, 192, 0, 2, 2)                   // local IP
	data = binary.BigEndian.AppendUint16(data, 3)       // old state: Active
	data = binary.BigEndian.AppendUint16(data, 6)       // new state: Established

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

// mapOpener opens a byte stream by exact path match, the test double for a
// reader.Opener that a production Opener (HTTP/filesystem) would implement.
type mapOpener map[string][]byte

func (m mapOpener) Open(_ context.Context, path string) (io.ReadCloser, error) {
	data, ok := m[path]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func TestPoolMergesReadersInRecordTimeOrder(t *testing.T) {
	opener := mapOpener{
		"fake://late":  stateChangeDump(t, 2000),
		"fake://early": stateChangeDump(t, 1000),
	}

	p := New(context.Background(), nil, Options{ReaderOpts: reader.Options{Opener: opener}})
	p.Add([]queue.Entry{
		{Path: "fake://late", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 2000},
		{Path: "fake://early", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000},
	})

	if got := p.Len(); got != 2 {
		t.Fatalf("Len() = %d, want 2", got)
	}

	var first, second record.Record
	ok, err := p.NextRecord(&first)
	if err != nil || !ok {
		t.Fatalf("first NextRecord: ok=%v err=%v", ok, err)
	}
	if first.RecordTime != 1000 {
		t.Errorf("first record time = %d, want 1000 (earliest first)", first.RecordTime)
	}

	ok, err = p.NextRecord(&second)
	if err != nil || !ok {
		t.Fatalf("second NextRecord: ok=%v err=%v", ok, err)
	}
	if second.RecordTime != 2000 {
		t.Errorf("second record time = %d, want 2000", second.RecordTime)
	}

	var third record.Record
	ok, err = p.NextRecord(&third)
	if err != nil {
		t.Fatalf("third NextRecord: err=%v", err)
	}
	if ok {
		t.Errorf("expected pool exhausted, got a third record")
	}
	if got := p.Len(); got != 0 {
		t.Errorf("Len() after exhaustion = %d, want 0", got)
	}
}

func TestPoolAddRejectsRIBBelowPeriod(t *testing.T) {
	store := filter.NewStore()
	store.SetRIBPeriod(3600)
	store.RIBPeriodPasses("routeviews", "rrc00", 1000) // first RIB admitted, seeds the period

	p := New(context.Background(), store, Options{ReaderOpts: reader.Options{Opener: mapOpener{}}})
	p.Add([]queue.Entry{
		{Path: "fake://too-soon", Project: "routeviews", Collector: "rrc00", Kind: record.DumpRIB, FileTime: 1100},
	})

	if got := p.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0 (RIB entry inside the period should be rejected before a Reader is created)", got)
	}
}

func TestPoolCloseStopsEveryReader(t *testing.T) {
	opener := mapOpener{"fake://a": stateChangeDump(t, 1000)}

	p := New(context.Background(), nil, Options{ReaderOpts: reader.Options{Opener: opener}})
	p.Add([]queue.Entry{
		{Path: "fake://a", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000},
	})

	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := p.Len(); got != 0 {
		t.Errorf("Len() after Close = %d, want 0", got)
	}
}
