// Package record holds the emitted Record and Element types (C6) and their
// lazy, restartable element generator, modeled on bgpfix/msg.Msg's
// Reset-then-fill reuse pattern so a caller can recycle the same Record
// across calls instead of allocating one per entry.
package record

import (
	"github.com/bgpstream/bgpstream/aspath"
	"github.com/bgpstream/bgpstream/community"
	"github.com/bgpstream/bgpstream/ipaddr"
)

// DumpKind is the kind of dump a Record was decoded from.
type DumpKind string

const (
	DumpRIB    DumpKind = "rib"
	DumpUpdate DumpKind = "update"
)

// ElementKind is the kind of routing element (spec.md §3).
type ElementKind string

const (
	ElemRIB       ElementKind = "rib"
	ElemAnnounce  ElementKind = "announce"
	ElemWithdraw  ElementKind = "withdraw"
	ElemPeerState ElementKind = "peer_state"
)

// PeerState is a BGP peer session state, as carried by a peer_state element.
type PeerState string

const (
	StateIdle        PeerState = "idle"
	StateConnect     PeerState = "connect"
	StateActive      PeerState = "active"
	StateOpenSent    PeerState = "open_sent"
	StateOpenConfirm PeerState = "open_confirm"
	StateEstablished PeerState = "established"
	StateClearing    PeerState = "clearing"
	StateDeleted     PeerState = "deleted"
)

// Status is a Record's processing outcome.
type Status string

const (
	StatusValid            Status = "valid_record"
	StatusFilteredSource   Status = "filtered_source"
	StatusEmptySource      Status = "empty_source"
	StatusCorruptedSource  Status = "corrupted_source"
	StatusCorruptedRecord  Status = "corrupted_record"
)

// DumpPosition marks a Record's place within its source dump.
type DumpPosition string

const (
	PositionStart  DumpPosition = "start"
	PositionMiddle DumpPosition = "middle"
	PositionEnd    DumpPosition = "end"
)

// Element is one routing element expanded out of a Record (spec.md §3).
type Element struct {
	Kind        ElementKind
	Timestamp   int64
	PeerAddress ipaddr.Address
	PeerASN     uint32

	// announce, rib, withdraw
	Prefix ipaddr.Prefix

	// announce, rib only
	NextHop     ipaddr.Address
	ASPath      aspath.Path
	Communities []community.Community

	// peer_state only
	OldState PeerState
	NewState PeerState

	// RPKIValidity is the verdict of the Record's configured rpki.Annotator,
	// "" if none is configured. It is additive: nothing above is altered by
	// annotation (rpki.Annotator "must not mutate the element's core
	// fields").
	RPKIValidity string
}

// Record is one decoded MRT entry: a RIB row, an UPDATE message, or a peer
// state change, carrying a lazy sequence of Elements (spec.md §3, §4.6).
type Record struct {
	Project    string
	Collector  string
	DumpKind   DumpKind
	DumpTime   int64
	RecordTime int64

	Status       Status
	DumpPosition DumpPosition

	// Payload is the opaque decoder payload the Generator expands lazily.
	// It is nil for records whose Status is not StatusValid.
	Payload any

	// Annotate, if set, is applied to each Element the Generator produces,
	// between generation and any element-level filter pass (the rpki
	// package's pluggable ROA decorator seam). The owning Stream Façade
	// reinstalls it after every Reset, since Reset clears it along with
	// everything else.
	Annotate func(*Element)

	gen *Generator
}

// Reset clears r back to the zero Record, ready to be filled again. Callers
// reuse a single Record across many calls instead of allocating afresh
// (spec.md §3: "the user may reuse a Record across calls; on each call the
// Façade clears the Record before filling it").
func (r *Record) Reset() {
	r.Project = ""
	r.Collector = ""
	r.DumpKind = ""
	r.DumpTime = 0
	r.RecordTime = 0
	r.Status = ""
	r.DumpPosition = ""
	r.Payload = nil
	r.Annotate = nil
	r.gen = nil
}

// Generator lazily returns r's Generator, creating it from r.Payload on
// first use. A Generator is cleared whenever its owning Record is cleared.
func (r *Record) Generator() *Generator {
	if r.gen == nil {
		r.gen = newGenerator(r)
	}
	return r.gen
}
