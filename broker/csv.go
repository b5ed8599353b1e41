package broker

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

// CSVCatalogue enumerates rows of a local manifest file, grounded on
// original_source/lib/datasources/bgpstream_datasource_csvfile.c: each row
// is path,project,type,collector,filetime,timespan,timestamp; a row is
// admitted once (its timestamp must exceed the highest timestamp admitted
// on a previous scan, and not exceed "now - 1s") and must pass the bound
// Filter Store's project/collector/type/interval constraints.
//
// encoding/csv is stdlib: no CSV parsing library appears anywhere in the
// example pack, and the source's own libcsv dependency is a peripheral
// implementation detail this variant's interface does not bind (spec.md
// §9: "their interfaces are specified but their bodies are peripheral").
type CSVCatalogue struct {
	store *filter.Store
	path  string

	lastProcessedTS int64
}

// NewCSVCatalogue returns a CSVCatalogue reading path, filtered by store.
func NewCSVCatalogue(store *filter.Store, path string) (*CSVCatalogue, error) {
	if path == "" {
		return nil, fmt.Errorf("broker: csvfile catalogue requires a -o csv-file,<path> option")
	}
	return &CSVCatalogue{store: store, path: path}, nil
}

// Refresh rescans the manifest and pushes every row not yet admitted that
// passes the bound filters.
func (c *CSVCatalogue) Refresh(q *queue.Queue) (int, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return -1, err
	}
	defer f.Close()

	maxAcceptedTS := time.Now().Unix() - 1
	maxSeenTS := int64(0)
	pushed := 0

	r := csv.NewReader(f)
	r.FieldsPerRecord = 7
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return -1, fmt.Errorf("broker: csvfile parse error: %w", err)
		}

		path, project, kind, collector := row[0], row[1], row[2], row[3]
		fileTime, err1 := strconv.ParseInt(row[4], 10, 64)
		timeSpan, err2 := strconv.ParseInt(row[5], 10, 64)
		timestamp, err3 := strconv.ParseInt(row[6], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return -1, fmt.Errorf("broker: csvfile row has non-numeric timing field: %v", row)
		}

		if timestamp <= c.lastProcessedTS || timestamp > maxAcceptedTS {
			continue
		}
		if timestamp > maxSeenTS {
			maxSeenTS = timestamp
		}
		if !passesManifestFilter(c.store, project, collector, kind, fileTime) {
			continue
		}

		if q.Push(queue.Entry{
			Path:      path,
			Project:   project,
			Collector: collector,
			Kind:      record.DumpKind(kind),
			FileTime:  fileTime,
			TimeSpan:  timeSpan,
		}) {
			pushed++
		}
	}

	if maxSeenTS > c.lastProcessedTS {
		c.lastProcessedTS = maxSeenTS
	}
	return pushed, nil
}

// Close is a no-op: CSVCatalogue holds no resources between refreshes.
func (c *CSVCatalogue) Close() error { return nil }

// passesManifestFilter applies the project/collector/type/interval axes of
// store to a CSV manifest row.
func passesManifestFilter(store *filter.Store, project, collector, kind string, fileTime int64) bool {
	if projects := store.Projects(); len(projects) > 0 && !contains(projects, project) {
		return false
	}
	if collectors := store.Collectors(); len(collectors) > 0 && !contains(collectors, collector) {
		return false
	}
	if kinds := store.DumpKinds(); len(kinds) > 0 && !contains(kinds, kind) {
		return false
	}
	if intervals := store.Intervals(); len(intervals) > 0 {
		ok := false
		for _, iv := range intervals {
			if fileTime >= iv.Begin && fileTime <= iv.End {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
