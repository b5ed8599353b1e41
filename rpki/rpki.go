// Package rpki provides the pluggable ROA/RPKI validation seam applied to
// each element between generation and the filter pass (spec.md §9: "it
// must not mutate the element's core fields"). A real validator talks to
// an RTR cache, the same external-collaborator boundary the original
// system draws in original_source/lib/utils/bgpstream_utils_rtr.c (an RTR
// client wrapping rtrlib, never holding ROAs itself) — out of scope here
// per spec.md §1, so this package ships only the interface and a no-op
// default.
package rpki

import "github.com/bgpstream/bgpstream/record"

// Validity is a ROA validation verdict for one element's (prefix, origin
// ASN) pair.
type Validity string

const (
	Unknown  Validity = "unknown"
	Valid    Validity = "valid"
	Invalid  Validity = "invalid"
	NotFound Validity = "notfound"
)

// Annotator validates one element against an external ROA source. It
// returns the verdict rather than writing it into the element, keeping
// the element's own fields untouched regardless of whether annotation is
// configured.
type Annotator interface {
	Annotate(elem *record.Element) (Validity, error)
}

// NoOp is the default Annotator: every element is Unknown, never an
// error. A stream with no configured Annotator behaves exactly as if
// RPKI annotation did not exist.
type NoOp struct{}

func (NoOp) Annotate(_ *record.Element) (Validity, error) {
	return Unknown, nil
}
