package reader

import (
	"bufio"
	"compress/bzip2"
	"context"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Opener opens a dump file's byte stream, given its path (a local filesystem
// path or an http(s) URL). The wire fetcher is an external collaborator
// (spec.md §1 Non-goals), so Opener is an interface: callers may plug in
// their own, but DefaultOpener makes the module runnable out of the box,
// the way bgpfix/mrt.Reader.ReadFromPath provides one.
type Opener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// DefaultOpener reads a local path or fetches an http(s) URL, transparently
// decompressing .gz and .bz2 dumps the way route collectors publish them.
type DefaultOpener struct {
	// Client is the HTTP client used for http(s) paths. A zero value uses
	// http.DefaultClient.
	Client *http.Client
}

func (o DefaultOpener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	var raw io.ReadCloser
	switch {
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		client := o.Client
		if client == nil {
			client = http.DefaultClient
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, &httpStatusError{path: path, status: resp.StatusCode}
		}
		raw = resp.Body
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		raw = f
	}

	return decompress(path, raw)
}

type httpStatusError struct {
	path   string
	status int
}

func (e *httpStatusError) Error() string {
	return "reader: unexpected HTTP status fetching " + e.path
}

// decompress wraps raw in a gzip or bzip2 reader based on path's extension,
// using klauspost/compress for gzip (as pobradovic08-route-beacon-ri and
// rockstar-0000-aistore do for this exact concern rather than stdlib
// compress/gzip) and stdlib compress/bzip2 for bzip2, since klauspost ships
// no bzip2 decoder.
func decompress(path string, raw io.ReadCloser) (io.ReadCloser, error) {
	switch {
	case strings.HasSuffix(path, ".gz"):
		zr, err := gzip.NewReader(bufio.NewReader(raw))
		if err != nil {
			raw.Close()
			return nil, err
		}
		return &readCloser{Reader: zr, closer: raw}, nil
	case strings.HasSuffix(path, ".bz2"):
		// klauspost/compress does not ship a bzip2 decoder; stdlib's
		// compress/bzip2 is the only decoder in the pack's dependency
		// surface, so it is used here (justified as standard-library
		// in DESIGN.md).
		return &readCloser{Reader: bzip2.NewReader(bufio.NewReader(raw)), closer: raw}, nil
	default:
		return raw, nil
	}
}

// readCloser pairs a decompressing io.Reader with the underlying io.Closer
// it must release.
type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error {
	return r.closer.Close()
}
