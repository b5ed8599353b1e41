package broker

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/bgpstream/bgpstream/queue"
	"github.com/bgpstream/bgpstream/record"
)

const (
	ribFrequencyCheck    = 1800 * time.Second
	updateFrequencyCheck = 120 * time.Second
	maxHeaderReadBytes   = 1024
)

// SinglefileOptions names the (at most two) fixed dump files watched for
// logrotation.
type SinglefileOptions struct {
	RIBFile    string
	UpdateFile string
}

// Singlefile is the C3 catalogue variant that watches one rib file and one
// update file for logrotation, grounded on
// original_source/lib/datasources/bgpstream_datasource_singlefile.c: a
// file is pushed again once its check interval has elapsed and its first
// maxHeaderReadBytes bytes differ from what was last seen.
type Singlefile struct {
	opts SinglefileOptions

	lastRIBPush    time.Time
	ribHeader      []byte
	lastUpdatePush time.Time
	updateHeader   []byte
}

// NewSinglefile returns a ready-to-use Singlefile catalogue.
func NewSinglefile(opts SinglefileOptions) *Singlefile {
	return &Singlefile{opts: opts}
}

// Refresh pushes the rib and/or update file if its recheck interval has
// elapsed and its header has changed since the last push.
func (s *Singlefile) Refresh(q *queue.Queue) (int, error) {
	now := time.Now()
	pushed := 0

	if s.opts.RIBFile != "" && now.Sub(s.lastRIBPush) > ribFrequencyCheck {
		changed, header, err := headerChanged(s.opts.RIBFile, s.ribHeader)
		if err != nil {
			return -1, err
		}
		if changed {
			s.ribHeader = header
			s.lastRIBPush = now
			if q.Push(queue.Entry{
				Path:      s.opts.RIBFile,
				Project:   "singlefile",
				Collector: "singlefile",
				Kind:      record.DumpRIB,
				FileTime:  now.Unix(),
				TimeSpan:  int64(ribFrequencyCheck / time.Second),
			}) {
				pushed++
			}
		}
	}

	if s.opts.UpdateFile != "" && now.Sub(s.lastUpdatePush) > updateFrequencyCheck {
		changed, header, err := headerChanged(s.opts.UpdateFile, s.updateHeader)
		if err != nil {
			return -1, err
		}
		if changed {
			s.updateHeader = header
			s.lastUpdatePush = now
			if q.Push(queue.Entry{
				Path:      s.opts.UpdateFile,
				Project:   "singlefile",
				Collector: "singlefile",
				Kind:      record.DumpUpdate,
				FileTime:  now.Unix(),
				TimeSpan:  int64(updateFrequencyCheck / time.Second),
			}) {
				pushed++
			}
		}
	}

	return pushed, nil
}

// Close is a no-op: Singlefile holds no resources between refreshes.
func (s *Singlefile) Close() error { return nil }

// headerChanged reports whether path's first maxHeaderReadBytes differ
// from previous, along with the freshly read header to remember next
// time.
func headerChanged(path string, previous []byte) (bool, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, nil, err
	}
	defer f.Close()

	buf := make([]byte, maxHeaderReadBytes)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false, nil, err
	}
	buf = buf[:n]

	if bytes.Equal(buf, previous) {
		return false, previous, nil
	}
	return true, buf, nil
}
