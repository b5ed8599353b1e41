package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/queue"
)

// Catalogue is the capability set shared by every C3 variant: refresh the
// Input Queue and tear down cleanly. Selection among variants is a
// runtime registry keyed by name, replacing the source's preprocessor
// compilation toggles per variant (spec.md §9 redesign note).
type Catalogue interface {
	Refresh(q *queue.Queue) (int, error)
	Close() error
}

// Constructor builds a named Catalogue variant from its raw "-o key,value"
// options (spec.md §4.8 CLI table).
type Constructor func(ctx context.Context, store *filter.Store, rawOpts map[string]string) (Catalogue, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register adds (or replaces) a named catalogue constructor. Called from
// package init() for the four built-in variants; exported so a caller may
// register additional variants of their own.
func Register(name string, ctor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = ctor
}

// New constructs the named catalogue variant.
func New(ctx context.Context, name string, store *filter.Store, rawOpts map[string]string) (Catalogue, error) {
	registryMu.RLock()
	ctor, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("broker: unknown catalogue variant %q", name)
	}
	return ctor(ctx, store, rawOpts)
}

func init() {
	Register("broker", func(ctx context.Context, store *filter.Store, rawOpts map[string]string) (Catalogue, error) {
		opts := DefaultOptions
		if v, ok := rawOpts["url"]; ok {
			opts.BaseURL = v
		}
		if len(rawOpts) > 0 {
			opts.Params = rawOpts
		}
		return NewBroker(ctx, store, opts), nil
	})
	Register("singlefile", func(ctx context.Context, store *filter.Store, rawOpts map[string]string) (Catalogue, error) {
		return NewSinglefile(SinglefileOptions{
			RIBFile:    rawOpts["rib-file"],
			UpdateFile: rawOpts["upd-file"],
		}), nil
	})
	Register("csvfile", func(ctx context.Context, store *filter.Store, rawOpts map[string]string) (Catalogue, error) {
		return NewCSVCatalogue(store, rawOpts["csv-file"])
	})
	Register("sqlite", func(ctx context.Context, store *filter.Store, rawOpts map[string]string) (Catalogue, error) {
		return NewSQLiteCatalogue(store, rawOpts["db-file"])
	})
}
