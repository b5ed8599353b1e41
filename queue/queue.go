// Package queue implements the Input Queue (C2): a sorted-insert FIFO of
// dump-file entries awaiting a Reader, keyed primarily by file_time and
// secondarily by kind (rib before update at equal file_time), with
// duplicate suppression and a bounded, interval-coherent batch take.
// Grounded on original_source/lib/bgpstream_input.c's sorted insert and
// bgpstream_input_mgr.c's take-next-batch sizing.
package queue

import (
	"sort"

	"github.com/bgpstream/bgpstream/record"
)

// MaxBatch is the hard upper bound on entries TakeReadyBatch returns in one
// call (spec.md §4.2).
const MaxBatch = 200

// Entry is one dump file awaiting a Reader (spec.md §3: "Input record").
type Entry struct {
	Path      string
	Project   string
	Collector string
	Kind      record.DumpKind
	FileTime  int64
	TimeSpan  int64
}

// interval returns the half-open [start, end) window this entry covers:
// ribs cover [file_time-span, file_time+span], updates cover
// [file_time, file_time+span] (spec.md §4.2).
func (e Entry) interval() (start, end int64) {
	if e.Kind == record.DumpRIB {
		return e.FileTime - e.TimeSpan, e.FileTime + e.TimeSpan
	}
	return e.FileTime, e.FileTime + e.TimeSpan
}

func kindRank(k record.DumpKind) int {
	if k == record.DumpRIB {
		return 0
	}
	return 1
}

func less(a, b Entry) bool {
	if a.FileTime != b.FileTime {
		return a.FileTime < b.FileTime
	}
	return kindRank(a.Kind) < kindRank(b.Kind)
}

// Queue is the Input Queue. The zero value is an empty, ready-to-use queue.
type Queue struct {
	entries []Entry
}

// Len returns the number of entries currently queued.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Push inserts e in sorted position and reports whether it was inserted.
// It is a no-op, returning false, if an entry with the same
// (file_time, project, collector, kind) already exists (spec.md §4.2).
func (q *Queue) Push(e Entry) bool {
	for _, existing := range q.entries {
		if existing.FileTime == e.FileTime && existing.Project == e.Project &&
			existing.Collector == e.Collector && existing.Kind == e.Kind {
			return false
		}
	}

	idx := sort.Search(len(q.entries), func(i int) bool {
		return !less(q.entries[i], e)
	})
	q.entries = append(q.entries, Entry{})
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = e
	return true
}

// TakeReadyBatch removes and returns a prefix of the queue such that every
// taken entry's covered interval overlaps the running union of already-taken
// intervals, capped at MaxBatch entries (spec.md §4.2).
func (q *Queue) TakeReadyBatch() []Entry {
	if len(q.entries) == 0 {
		return nil
	}

	var taken []Entry
	var unionStart, unionEnd int64
	haveUnion := false

	for len(taken) < MaxBatch && len(q.entries) > 0 {
		head := q.entries[0]
		start, end := head.interval()

		if haveUnion && !overlaps(start, end, unionStart, unionEnd) {
			break
		}

		taken = append(taken, head)
		q.entries = q.entries[1:]

		if !haveUnion {
			unionStart, unionEnd = start, end
			haveUnion = true
		} else {
			if start < unionStart {
				unionStart = start
			}
			if end > unionEnd {
				unionEnd = end
			}
		}
	}

	return taken
}

func overlaps(s1, e1, s2, e2 int64) bool {
	return s1 < e2 && s2 < e1
}
