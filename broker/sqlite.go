package broker

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

// SQLiteCatalogue enumerates rows of a local SQLite manifest, grounded on
// original_source/lib/datasources/bgpstream_datasource_sqlite.c: the fixed
// four-way join of bgp_data/collectors/bgp_types/time_span, filtered by
// project/collector/type/interval and by a ts > last_ts watermark to avoid
// re-admitting rows on rescan.
//
// The source builds this query by raw string concatenation of filter
// values (including user-supplied project/collector names) directly into
// SQL; that is copied here only as far as the fixed join shape, never the
// concatenation technique — every filter value is bound as a driver
// parameter via sqlx.
type SQLiteCatalogue struct {
	store *filter.Store
	db    *sqlx.DB

	lastTS int64
}

// NewSQLiteCatalogue opens path read-only and returns a ready catalogue.
func NewSQLiteCatalogue(store *filter.Store, path string) (*SQLiteCatalogue, error) {
	if path == "" {
		return nil, fmt.Errorf("broker: sqlite catalogue requires a -o db-file,<path> option")
	}
	db, err := sqlx.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return nil, err
	}
	return &SQLiteCatalogue{store: store, db: db}, nil
}

type manifestRow struct {
	FilePath  string `db:"file_path"`
	Project   string `db:"project"`
	Collector string `db:"name"`
	BGPType   string `db:"type_name"`
	TimeSpan  int64  `db:"time_span"`
	FileTime  int64  `db:"file_time"`
	TS        int64  `db:"ts"`
}

// Refresh re-queries the manifest for rows newer than the last-seen
// timestamp, applies the bound filters, and pushes the survivors.
func (c *SQLiteCatalogue) Refresh(q *queue.Queue) (int, error) {
	query, args := c.buildQuery()

	var rows []manifestRow
	if err := c.db.Select(&rows, query, args...); err != nil {
		return -1, fmt.Errorf("broker: sqlite query failed: %w", err)
	}

	pushed := 0
	maxTS := c.lastTS
	for _, r := range rows {
		if r.TS > maxTS {
			maxTS = r.TS
		}
		if q.Push(queue.Entry{
			Path:      r.FilePath,
			Project:   r.Project,
			Collector: r.Collector,
			Kind:      record.DumpKind(r.BGPType),
			FileTime:  r.FileTime,
			TimeSpan:  r.TimeSpan,
		}) {
			pushed++
		}
	}
	c.lastTS = maxTS
	return pushed, nil
}

// buildQuery assembles the fixed join plus a dynamic WHERE, with every
// filter value bound as a positional parameter.
func (c *SQLiteCatalogue) buildQuery() (string, []interface{}) {
	var sb strings.Builder
	sb.WriteString(`SELECT bgp_data.file_path AS file_path, collectors.project AS project, ` +
		`collectors.name AS name, bgp_types.name AS type_name, time_span.time_span AS time_span, ` +
		`bgp_data.file_time AS file_time, bgp_data.ts AS ts ` +
		`FROM bgp_data ` +
		`JOIN collectors ON bgp_data.collector_id = collectors.id ` +
		`JOIN bgp_types ON bgp_data.type_id = bgp_types.id ` +
		`JOIN time_span ON bgp_data.collector_id = time_span.collector_id ` +
		`AND bgp_data.type_id = time_span.bgp_type_id WHERE 1=1`)

	var args []interface{}
	appendIn := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		sb.WriteString(fmt.Sprintf(" AND %s IN (%s)", column, placeholders))
		for _, v := range values {
			args = append(args, v)
		}
	}
	appendIn("collectors.project", c.store.Projects())
	appendIn("collectors.name", c.store.Collectors())
	appendIn("bgp_types.name", c.store.DumpKinds())

	if intervals := c.store.Intervals(); len(intervals) > 0 {
		sb.WriteString(" AND (")
		for i, iv := range intervals {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			// 120s slack compensates for a dump whose filetime is
			// slightly offset from its nominal boundary (e.g.
			// rib.23.59 instead of rib.00.00).
			sb.WriteString("(bgp_data.file_time >= ? - time_span.time_span - 120")
			args = append(args, iv.Begin)
			if iv.End != filter.Live {
				sb.WriteString(" AND bgp_data.file_time <= ?")
				args = append(args, iv.End)
			}
			sb.WriteString(")")
		}
		sb.WriteString(")")
	}

	sb.WriteString(" AND bgp_data.ts > ? AND bgp_data.ts <= ? ORDER BY file_time ASC")
	args = append(args, c.lastTS, time.Now().Unix()-1)

	return sb.String(), args
}

// Close closes the underlying database handle.
func (c *SQLiteCatalogue) Close() error {
	return c.db.Close()
}
