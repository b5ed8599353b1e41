package reader

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/bgpfix/bgpfix/mrt"

	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

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

// fixedOpener always hands back the same byte stream, regardless of path.
type fixedOpener struct{ data []byte }

func (o fixedOpener) Open(_ context.Context, _ string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

// TestAdvanceExportsCorruptedStatusOnItsOwnNextCall exercises a Reader whose
// dump goes valid -> corrupted mid-stream (one good entry, then a truncated
// envelope header): the first Advance call must still export the valid
// entry untouched, and the corrupted status must surface as its own record
// only on the *following* call, mirroring
// bgpstream_reader_mgr_get_next_record's two-call split.
func TestAdvanceExportsCorruptedStatusOnItsOwnNextCall(t *testing.T) {
	dump := stateChangeDump(t, 1000)
	dump = append(dump, 0, 1, 2, 3) // truncated envelope header: not a full MRT entry

	entry := queue.Entry{Path: "fake://mid-corrupt", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000}
	r := NewReader(context.Background(), entry, Options{Opener: fixedOpener{data: dump}})
	defer r.Stop()

	if err := r.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var first record.Record
	if err := r.Advance(nil, &first); err != nil {
		t.Fatalf("first Advance: %v", err)
	}
	if first.Status != record.StatusValid {
		t.Fatalf("first Status = %s, want %s", first.Status, record.StatusValid)
	}
	if first.RecordTime != 1000 {
		t.Errorf("first RecordTime = %d, want 1000", first.RecordTime)
	}
	if r.Done() {
		t.Fatal("Reader reported Done() after exporting the valid entry; the pending corrupted status would be lost")
	}

	var second record.Record
	if err := r.Advance(nil, &second); err != nil {
		t.Fatalf("second Advance: %v", err)
	}
	if second.Status != record.StatusCorruptedRecord {
		t.Fatalf("second Status = %s, want %s", second.Status, record.StatusCorruptedRecord)
	}
	if second.DumpPosition != record.PositionEnd {
		t.Errorf("second DumpPosition = %s, want %s", second.DumpPosition, record.PositionEnd)
	}
	if !r.Done() {
		t.Error("Reader should report Done() once the corrupted status has been exported")
	}
	if err := r.Err(); err == nil {
		t.Error("Err() should surface the decode failure behind the corrupted status")
	}
}

// TestAdvanceCleanEndOfDumpDestroysInSameCall confirms a Reader that runs
// cleanly off the end of its dump resolves PositionEnd within the same
// Advance call that exported the last valid entry, unlike the corrupted
// case above.
func TestAdvanceCleanEndOfDumpDestroysInSameCall(t *testing.T) {
	dump := stateChangeDump(t, 1000)

	entry := queue.Entry{Path: "fake://clean-eod", Project: "routeviews", Collector: "rrc00", Kind: record.DumpUpdate, FileTime: 1000}
	r := NewReader(context.Background(), entry, Options{Opener: fixedOpener{data: dump}})
	defer r.Stop()

	if err := r.Start(nil); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var rec record.Record
	if err := r.Advance(nil, &rec); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if rec.Status != record.StatusValid {
		t.Fatalf("Status = %s, want %s", rec.Status, record.StatusValid)
	}
	if rec.DumpPosition != record.PositionEnd {
		t.Errorf("DumpPosition = %s, want %s (only entry, and read-ahead finds a clean EOF)", rec.DumpPosition, record.PositionEnd)
	}
	if !r.Done() {
		t.Error("Reader should report Done() once a clean end_of_dump has been folded into the last valid record")
	}
}
