package queue

import (
	"testing"

	"github.com/bgpstream/bgpstream/record"
)

func TestPushSortsByFileTimeThenKind(t *testing.T) {
	var q Queue
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpUpdate, FileTime: 200, TimeSpan: 10})
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpRIB, FileTime: 200, TimeSpan: 10})
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpUpdate, FileTime: 100, TimeSpan: 10})

	if q.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", q.Len())
	}
	if q.entries[0].FileTime != 100 {
		t.Errorf("expected file_time 100 first, got %d", q.entries[0].FileTime)
	}
	if q.entries[1].Kind != record.DumpRIB || q.entries[2].Kind != record.DumpUpdate {
		t.Error("expected rib to sort before update at equal file_time")
	}
}

func TestPushDedupes(t *testing.T) {
	var q Queue
	e := Entry{Project: "p", Collector: "c", Kind: record.DumpRIB, FileTime: 100, TimeSpan: 10}
	if !q.Push(e) {
		t.Fatal("first push of a new entry must succeed")
	}
	if q.Push(e) {
		t.Error("pushing an identical (file_time, project, collector, kind) entry must be a no-op")
	}
	if q.Len() != 1 {
		t.Errorf("expected 1 entry after duplicate push, got %d", q.Len())
	}
}

func TestPushAllowsDifferentCollectorAtSameKey(t *testing.T) {
	var q Queue
	q.Push(Entry{Project: "p", Collector: "c1", Kind: record.DumpRIB, FileTime: 100, TimeSpan: 10})
	q.Push(Entry{Project: "p", Collector: "c2", Kind: record.DumpRIB, FileTime: 100, TimeSpan: 10})
	if q.Len() != 2 {
		t.Errorf("expected 2 entries for two different collectors at the same key, got %d", q.Len())
	}
}

func TestTakeReadyBatchOverlapChaining(t *testing.T) {
	var q Queue
	// rib at 100 span 10 covers [90,110); update at 105 span 10 covers [105,115),
	// which overlaps [90,110); update at 200 span 5 covers [200,205), disjoint.
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpRIB, FileTime: 100, TimeSpan: 10})
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpUpdate, FileTime: 105, TimeSpan: 10})
	q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpUpdate, FileTime: 200, TimeSpan: 5})

	batch := q.TakeReadyBatch()
	if len(batch) != 2 {
		t.Fatalf("expected a batch of 2 overlap-chained entries, got %d", len(batch))
	}
	if q.Len() != 1 {
		t.Errorf("expected the disjoint entry to remain queued, got %d remaining", q.Len())
	}
}

func TestTakeReadyBatchCapsAt200(t *testing.T) {
	var q Queue
	for i := 0; i < 250; i++ {
		q.Push(Entry{Project: "p", Collector: "c", Kind: record.DumpUpdate, FileTime: int64(i * 10), TimeSpan: 10000})
	}
	batch := q.TakeReadyBatch()
	if len(batch) != MaxBatch {
		t.Errorf("expected a batch capped at %d, got %d", MaxBatch, len(batch))
	}
	if q.Len() != 50 {
		t.Errorf("expected 50 entries left after a capped batch, got %d", q.Len())
	}
}

func TestTakeReadyBatchEmptyQueue(t *testing.T) {
	var q Queue
	if batch := q.TakeReadyBatch(); batch != nil {
		t.Errorf("expected nil batch from an empty queue, got %v", batch)
	}
}
