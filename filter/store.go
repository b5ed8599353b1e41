// Package filter implements the Filter Store (C1) and its DSL parser (C8):
// the set of project/collector/time/peer/prefix/community/AS-path
// constraints a stream is narrowed to, and the record_passes/element_passes
// predicates evaluated against every candidate Record and Element.
//
// The Store's generic add(kind, value) entry point and its separate
// interval/rib-period setters mirror the split in
// original_source/lib/bgpstream_filter.c between
// bgpstream_filter_mgr_filter_add (generic string filters) and the two
// dedicated bgpstream_filter_mgr_{interval,rib_period}_filter_add calls.
package filter

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bgpstream/bgpstream/community"
	"github.com/bgpstream/bgpstream/ipaddr"
	"github.com/bgpstream/bgpstream/patricia"
	"github.com/bgpstream/bgpstream/record"
)

// Live is the end_time sentinel meaning "no upper bound" (spec.md §4.1: "∞
// meaning live").
const Live int64 = math.MaxInt64

// Kind names one filterable axis, mirroring bgpstream.h's
// BGPSTREAM_FILTER_TYPE_* enum.
type Kind string

const (
	KindProject    Kind = "project"
	KindCollector  Kind = "collector"
	KindDumpKind   Kind = "type"
	KindElemKind   Kind = "elemtype"
	KindPeerASN    Kind = "peer"
	KindPrefixAny  Kind = "prefix_any"
	KindPrefixMore Kind = "prefix_more"
	KindPrefixLess Kind = "prefix_less"
	KindPrefixExact Kind = "prefix_exact"
	KindCommunity  Kind = "community"
	KindASPath     Kind = "aspath"
	KindIPVersion  Kind = "ipversion"
)

// Interval is an inclusive [Begin, End] time window; End may be Live.
type Interval struct {
	Begin int64
	End   int64
}

func (iv Interval) valid() bool {
	return iv.Begin <= iv.End
}

// DefaultOptions are the Store's default options.
var DefaultOptions = Options{
	Logger: &log.Logger,
}

// Options configure a Store.
type Options struct {
	Logger *zerolog.Logger // if nil, logging is disabled
}

// stringSet is a membership-only string set; the zero value is empty.
type stringSet map[string]struct{}

func (s stringSet) add(v string)      { s[v] = struct{}{} }
func (s stringSet) has(v string) bool { _, ok := s[v]; return ok }

// Store holds every constraint configured for a stream (spec.md §4.1).
type Store struct {
	*zerolog.Logger

	Options Options

	projects   stringSet
	collectors stringSet
	dumpKinds  stringSet
	elemKinds  stringSet
	peerASNs   map[uint32]struct{}

	prefixExact *patricia.Tree
	prefixMore  *patricia.Tree
	prefixLess  *patricia.Tree
	prefixAny   *patricia.Tree

	communities []community.Matcher
	intervals   []Interval
	aspathRegex []*regexp.Regexp
	ipVersions  map[int]struct{}

	ribPeriod           int64
	lastAdmittedRIBTime map[string]int64
}

// NewStore returns an empty Store.
func NewStore() *Store {
	s := &Store{
		Options:     DefaultOptions,
		projects:    stringSet{},
		collectors:  stringSet{},
		dumpKinds:   stringSet{},
		elemKinds:   stringSet{},
		peerASNs:    map[uint32]struct{}{},
		prefixExact: patricia.New(),
		prefixMore:  patricia.New(),
		prefixLess:  patricia.New(),
		prefixAny:   patricia.New(),
		ipVersions:  map[int]struct{}{},
	}
	if s.Options.Logger != nil {
		s.Logger = s.Options.Logger
	} else {
		l := zerolog.Nop()
		s.Logger = &l
	}
	return s
}

// Add appends value under kind. Filters only ever accumulate: there is no
// remove. Unknown kinds are logged and ignored (spec.md §4.1).
func (s *Store) Add(kind Kind, value string) error {
	switch kind {
	case KindProject:
		s.projects.add(value)
	case KindCollector:
		s.collectors.add(value)
	case KindDumpKind:
		s.dumpKinds.add(value)
	case KindElemKind:
		s.elemKinds.add(value)
	case KindPeerASN:
		asn, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return fmt.Errorf("filter: invalid peer ASN %q: %w", value, err)
		}
		s.peerASNs[uint32(asn)] = struct{}{}
	case KindPrefixExact, KindPrefixMore, KindPrefixLess, KindPrefixAny:
		p, err := ipaddr.ParsePrefix(value)
		if err != nil {
			return fmt.Errorf("filter: invalid prefix %q: %w", value, err)
		}
		s.treeFor(kind).Insert(p)
	case KindCommunity:
		m, err := community.ParseMatcher(value)
		if err != nil {
			return err
		}
		s.communities = append(s.communities, m)
	case KindASPath:
		re, err := regexp.Compile(value)
		if err != nil {
			return fmt.Errorf("filter: invalid aspath regex %q: %w", value, err)
		}
		s.aspathRegex = append(s.aspathRegex, re)
	case KindIPVersion:
		v, err := strconv.Atoi(value)
		if err != nil || (v != 4 && v != 6) {
			return fmt.Errorf("filter: invalid ip version %q, want 4 or 6", value)
		}
		s.ipVersions[v] = struct{}{}
	default:
		s.Warn().Str("kind", string(kind)).Str("value", value).Msg("unknown filter kind, ignoring")
	}
	return nil
}

func (s *Store) treeFor(kind Kind) *patricia.Tree {
	switch kind {
	case KindPrefixExact:
		return s.prefixExact
	case KindPrefixLess:
		return s.prefixLess
	case KindPrefixAny:
		return s.prefixAny
	default:
		return s.prefixMore
	}
}

// AddInterval appends a [begin, end] time window; end may be Live.
func (s *Store) AddInterval(begin, end int64) {
	s.intervals = append(s.intervals, Interval{Begin: begin, End: end})
}

// SetRIBPeriod sets the minimum spacing, in seconds, required between two
// admitted RIB dumps from the same project+collector; 0 disables the rule.
func (s *Store) SetRIBPeriod(seconds int64) {
	s.ribPeriod = seconds
	if seconds != 0 && s.lastAdmittedRIBTime == nil {
		s.lastAdmittedRIBTime = make(map[string]int64)
	}
}

// Validate reports an error if any configured interval has begin > end.
func (s *Store) Validate() error {
	for _, iv := range s.intervals {
		if !iv.valid() {
			return fmt.Errorf("%w: [%d, %d]", ErrInterval, iv.Begin, iv.End)
		}
	}
	return nil
}

// Projects returns the configured project-name constraint set, or nil if
// none is configured. Used by the broker catalogue to build its query
// (spec.md §4.3.1: "projects[]=").
func (s *Store) Projects() []string { return keysOf(s.projects) }

// Collectors returns the configured collector-name constraint set, or nil
// if none is configured (spec.md §4.3.1: "collectors[]=").
func (s *Store) Collectors() []string { return keysOf(s.collectors) }

// DumpKinds returns the configured dump-type constraint set, or nil if
// none is configured (spec.md §4.3.1: "types[]=").
func (s *Store) DumpKinds() []string { return keysOf(s.dumpKinds) }

// Intervals returns the configured time windows, or nil if none is
// configured (spec.md §4.3.1: "intervals[]=begin,end").
func (s *Store) Intervals() []Interval {
	if len(s.intervals) == 0 {
		return nil
	}
	out := make([]Interval, len(s.intervals))
	copy(out, s.intervals)
	return out
}

// IsLive reports whether any configured interval's End is the Live
// sentinel, i.e. whether the stream has no fixed upper time bound (spec.md
// §4.3.4: the Façade's refresh-and-backoff loop only runs "when configured
// live").
func (s *Store) IsLive() bool {
	for _, iv := range s.intervals {
		if iv.End == Live {
			return true
		}
	}
	return false
}

func keysOf(s stringSet) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RecordPasses reports whether rec satisfies the project, collector,
// dump-kind, and time-interval constraints. An empty set on any axis means
// "no constraint on this axis" (spec.md §4.1).
func (s *Store) RecordPasses(rec *record.Record) bool {
	if len(s.projects) > 0 && !s.projects.has(rec.Project) {
		return false
	}
	if len(s.collectors) > 0 && !s.collectors.has(rec.Collector) {
		return false
	}
	if len(s.dumpKinds) > 0 && !s.dumpKinds.has(string(rec.DumpKind)) {
		return false
	}
	if len(s.intervals) > 0 && !s.inAnyInterval(rec.RecordTime) {
		return false
	}
	return true
}

func (s *Store) inAnyInterval(t int64) bool {
	for _, iv := range s.intervals {
		if t >= iv.Begin && t <= iv.End {
			return true
		}
	}
	return false
}

// IntervalPasses reports whether t falls within a configured time interval,
// or true if no interval is configured. This is the single, narrow check a
// Reader applies per entry (spec.md §9; ported from
// bgpstream_reader_filter_bd_entry, which filters only on time at this
// stage — project/collector/dump-kind are already decided by the time an
// entry reaches a Reader).
func (s *Store) IntervalPasses(t int64) bool {
	if len(s.intervals) == 0 {
		return true
	}
	return s.inAnyInterval(t)
}

// ElementPasses reports whether elem, belonging to a Record of dump kind
// parentKind, satisfies the element-level constraints. Checks run in this
// short-circuit order: element kind, IP version, peer ASN, then a pass for
// peer_state, then prefix containment, then a pass for withdraw, then AS
// path regex, then community match.
func (s *Store) ElementPasses(elem *record.Element, _ record.DumpKind) bool {
	if len(s.elemKinds) > 0 && !s.elemKinds.has(string(elem.Kind)) {
		return false
	}
	if len(s.ipVersions) > 0 && !s.ipVersionPasses(elem) {
		return false
	}
	if len(s.peerASNs) > 0 {
		if _, ok := s.peerASNs[elem.PeerASN]; !ok {
			return false
		}
	}

	if elem.Kind == record.ElemPeerState {
		return true
	}

	if s.hasPrefixConstraint() && !s.prefixPasses(elem.Prefix) {
		return false
	}

	if elem.Kind == record.ElemWithdraw {
		return true
	}

	if len(s.aspathRegex) > 0 && !s.aspathPasses(elem) {
		return false
	}

	if len(s.communities) > 0 && !community.MatchAny(s.communities, elem.Communities) {
		return false
	}

	return true
}

func (s *Store) ipVersionPasses(elem *record.Element) bool {
	v := 4
	if elem.PeerAddress.IsV6() {
		v = 6
	}
	_, ok := s.ipVersions[v]
	return ok
}

func (s *Store) hasPrefixConstraint() bool {
	return !s.prefixExact.Empty() || !s.prefixMore.Empty() ||
		!s.prefixLess.Empty() || !s.prefixAny.Empty()
}

// prefixPasses runs the Patricia query each configured prefix was added
// under: "more" (default) accepts p or anything more specific than a
// configured entry, "less" accepts p or anything less specific, "exact"
// requires equality, "any" accepts any overlap at all.
func (s *Store) prefixPasses(p ipaddr.Prefix) bool {
	if _, ok := s.prefixExact.Exact(p); ok {
		return true
	}
	if s.prefixMore.Covers(p) {
		return true
	}
	if s.prefixLess.Reaches(p) {
		return true
	}
	if s.prefixAny.AnyOverlap(p) {
		return true
	}
	return false
}

func (s *Store) aspathPasses(elem *record.Element) bool {
	str := elem.ASPath.String()
	for _, re := range s.aspathRegex {
		if re.MatchString(str) {
			return true
		}
	}
	return false
}

// rib period: returns true iff a RIB record for project.collector may be
// admitted given rec.RecordTime, and records the admission if so.
func (s *Store) ribPeriodPasses(project, collector string, recordTime int64) bool {
	if s.ribPeriod == 0 {
		return true
	}
	key := project + "." + collector
	last, ok := s.lastAdmittedRIBTime[key]
	if ok && recordTime-last < s.ribPeriod {
		return false
	}
	s.lastAdmittedRIBTime[key] = recordTime
	return true
}

// RIBPeriodPasses is the exported form of the rib-period admission test
// used by the Reader Pool (spec.md §9's redesign note; C5).
func (s *Store) RIBPeriodPasses(project, collector string, recordTime int64) bool {
	return s.ribPeriodPasses(project, collector, recordTime)
}
