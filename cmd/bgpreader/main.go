/*
 * a basic bgpreader front-end: just enough flag parsing to drive a Stream
 * end to end. Full CLI breadth (the Python binding, every -o per-interface
 * option, -I rolling windows, -P rib-period, -m output format) is out
 * of scope per spec.md §1 ("the command-line front-end and argument
 * parsing ... are peripheral"); this wires the subset that exercises every
 * module at least once.
 */
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/bgpstream/bgpstream/filter"
	"github.com/bgpstream/bgpstream/record"
	"github.com/bgpstream/bgpstream/stream"
)

// stringList collects a repeatable flag's values in order, the usual
// flag.Value idiom for "-p foo -p bar" style multi-value options.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var (
	optInterface  = flag.String("d", "broker", "data interface (catalogue variant) name")
	optOptions    stringList // -o key,value, repeatable
	optProjects   stringList // -p, repeatable
	optCollectors stringList // -c, repeatable
	optTypes      stringList // -t, repeatable
	optWindows    stringList // -w start[,end], repeatable
	optPeerASNs   stringList // -j, repeatable
	optPrefixes   stringList // -k, repeatable ("more" prefix filter)
	optCommunities stringList // -y, repeatable
	optFilterStr  = flag.String("f", "", "parse a filter-string DSL clause (spec.md §4.8)")
	optLive       = flag.Bool("l", false, "live mode: keep polling the catalogue instead of stopping at end of stream")
	optHeader     = flag.Bool("i", false, "print the output format header once before the first line")
	optRecordFmt  = flag.Bool("r", false, "print record lines instead of element lines")
)

func init() {
	flag.Var(&optOptions, "o", "set a catalogue option as key,value (repeatable)")
	flag.Var(&optProjects, "p", "append a project filter (repeatable)")
	flag.Var(&optCollectors, "c", "append a collector filter (repeatable)")
	flag.Var(&optTypes, "t", "append a dump-type filter: rib or update (repeatable)")
	flag.Var(&optWindows, "w", "append a time window start[,end] (repeatable)")
	flag.Var(&optPeerASNs, "j", "append a peer-ASN filter (repeatable)")
	flag.Var(&optPrefixes, "k", "append a prefix filter, default extension 'more' (repeatable)")
	flag.Var(&optCommunities, "y", "append a community filter, e.g. 2914:* (repeatable)")
}

func main() {
	flag.Usage = usage
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	s := stream.NewStream(ctx, stream.Options{
		CatalogueName: *optInterface,
		CatalogueOpts: parseOptions(optOptions),
	})

	if err := configure(s); err != nil {
		fmt.Fprintf(os.Stderr, "bgpreader: configuration error: %v\n", err)
		os.Exit(1)
	}

	if err := s.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "bgpreader: could not start stream: %v\n", err)
		os.Exit(1)
	}
	defer s.Stop()

	if *optHeader {
		printHeader(*optRecordFmt)
	}

	var rec record.Record
	for {
		err := s.NextRecord(&rec)
		if err != nil {
			if stream.IsEndOfStream(err) {
				os.Exit(0)
			}
			fmt.Fprintf(os.Stderr, "bgpreader: fatal: %v\n", err)
			os.Exit(1)
		}
		printRecord(&rec, *optRecordFmt)
	}
}

// configure applies every flag to s, in the allocated state.
func configure(s *stream.Stream) error {
	if *optFilterStr != "" {
		parsed, err := filter.ParseDSL(*optFilterStr)
		if err != nil {
			return fmt.Errorf("-f: %w", err)
		}
		if err := mergeDSLStore(s, parsed); err != nil {
			return err
		}
	}

	for _, v := range optProjects {
		if err := s.AddFilter(filter.KindProject, v); err != nil {
			return err
		}
	}
	for _, v := range optCollectors {
		if err := s.AddFilter(filter.KindCollector, v); err != nil {
			return err
		}
	}
	for _, v := range optTypes {
		if err := s.AddFilter(filter.KindDumpKind, v); err != nil {
			return err
		}
	}
	for _, v := range optPeerASNs {
		if err := s.AddFilter(filter.KindPeerASN, v); err != nil {
			return err
		}
	}
	for _, v := range optPrefixes {
		if err := s.AddFilter(filter.KindPrefixMore, v); err != nil {
			return err
		}
	}
	for _, v := range optCommunities {
		if err := s.AddFilter(filter.KindCommunity, v); err != nil {
			return err
		}
	}

	if err := addWindows(s); err != nil {
		return err
	}
	return nil
}

// addWindows appends every -w window, and, under -l with no window given
// at all, a single all-time live window (begin 0, end filter.Live) so "-l"
// alone is enough to watch a live catalogue (spec.md §6: "omitting end
// enables live").
func addWindows(s *stream.Stream) error {
	if len(optWindows) == 0 {
		if *optLive {
			return s.AddInterval(0, filter.Live)
		}
		return nil
	}
	for _, w := range optWindows {
		begin, end, err := parseWindow(w)
		if err != nil {
			return fmt.Errorf("-w %q: %w", w, err)
		}
		if err := s.AddInterval(begin, end); err != nil {
			return err
		}
	}
	return nil
}

func parseWindow(w string) (begin, end int64, err error) {
	parts := strings.SplitN(w, ",", 2)
	begin, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start time: %w", err)
	}
	if len(parts) == 1 {
		return begin, filter.Live, nil
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end time: %w", err)
	}
	return begin, end, nil
}

func parseOptions(opts stringList) map[string]string {
	if len(opts) == 0 {
		return nil
	}
	out := make(map[string]string, len(opts))
	for _, kv := range opts {
		k, v, ok := strings.Cut(kv, ",")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// mergeDSLStore threads the project/collector/type/interval constraints a
// parsed DSL clause produced into s. filter.Store exposes no general
// enumeration for its peer-ASN/prefix/community/aspath/ip-version axes (by
// design: those are write-only predicates, not round-tripped data), so a
// "-f" clause setting one of those is only honored when given directly
// through its own flag (-j/-k/-y) alongside -f.
func mergeDSLStore(s *stream.Stream, parsed *filter.Store) error {
	for _, v := range parsed.Projects() {
		if err := s.AddFilter(filter.KindProject, v); err != nil {
			return err
		}
	}
	for _, v := range parsed.Collectors() {
		if err := s.AddFilter(filter.KindCollector, v); err != nil {
			return err
		}
	}
	for _, v := range parsed.DumpKinds() {
		if err := s.AddFilter(filter.KindDumpKind, v); err != nil {
			return err
		}
	}
	for _, iv := range parsed.Intervals() {
		if err := s.AddInterval(iv.Begin, iv.End); err != nil {
			return err
		}
	}
	return nil
}

func printHeader(recordFmt bool) {
	if recordFmt {
		fmt.Println("# <dump-type>|<dump-pos>|<status>|<dump-time>")
		return
	}
	fmt.Println("# <type>|<peer_asn>|<peer_ip>|<prefix>|<next_hop>|<as_path>|<origin_asn>|<communities>|<old_state>|<new_state>")
}

func printRecord(rec *record.Record, recordFmt bool) {
	if recordFmt {
		fmt.Println(record.FormatRecordLine(rec))
		return
	}
	if rec.Status != record.StatusValid {
		fmt.Println(record.FormatRecordLine(rec))
		return
	}

	gen := rec.Generator()
	for {
		elem, ok := gen.NextElement()
		if !ok {
			return
		}
		fmt.Println(record.FormatElementLine(&elem))
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bgpreader [OPTIONS]\n\n")
	flag.PrintDefaults()
}
