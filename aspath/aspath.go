// Package aspath represents a parsed AS_PATH as the bgpstream filter and
// element layers need it: an ordered list of segments, each either an
// AS_SEQUENCE or an AS_SET, modeled on bgpfix/attrs.Aspath's segment split.
package aspath

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one AS_PATH segment.
type Segment struct {
	Set  bool     // true iff this is an AS_SET, false iff AS_SEQUENCE
	ASNs []uint32 // member ASNs, in encoded order
}

// Path is an ordered sequence of segments.
type Path struct {
	Segments []Segment
}

// Append adds a hop to the path. A single ASN extends (or starts) the last
// AS_SEQUENCE segment; more than one ASN is appended as a new AS_SET segment.
func (p *Path) Append(hop ...uint32) {
	switch len(hop) {
	case 0:
		return
	case 1:
		if n := len(p.Segments); n == 0 || p.Segments[n-1].Set {
			p.Segments = append(p.Segments, Segment{})
		}
		last := &p.Segments[len(p.Segments)-1]
		last.ASNs = append(last.ASNs, hop[0])
	default:
		p.Segments = append(p.Segments, Segment{Set: true, ASNs: append([]uint32(nil), hop...)})
	}
}

// Copy returns a deep copy of p.
func (p Path) Copy() Path {
	out := Path{Segments: make([]Segment, len(p.Segments))}
	for i, seg := range p.Segments {
		out.Segments[i] = Segment{Set: seg.Set, ASNs: append([]uint32(nil), seg.ASNs...)}
	}
	return out
}

// Origin returns the origin ASN(s): the last segment's last ASN if it is a
// sequence, or every ASN in the last segment if it is a set (spec.md §3).
func (p Path) Origin() []uint32 {
	if len(p.Segments) == 0 {
		return nil
	}
	last := p.Segments[len(p.Segments)-1]
	if len(last.ASNs) == 0 {
		return nil
	}
	if last.Set {
		return last.ASNs
	}
	return last.ASNs[len(last.ASNs)-1:]
}

// Peer returns the first-hop ASN (the peer's own ASN), or 0 if the path is empty.
func (p Path) Peer() uint32 {
	if len(p.Segments) == 0 || len(p.Segments[0].ASNs) == 0 {
		return 0
	}
	return p.Segments[0].ASNs[0]
}

// Len returns the number of AS hops, counting a non-empty AS_SET as one hop.
func (p Path) Len() int {
	n := 0
	for _, seg := range p.Segments {
		if seg.Set {
			if len(seg.ASNs) > 0 {
				n++
			}
		} else {
			n += len(seg.ASNs)
		}
	}
	return n
}

// AppendParsed appends tok, a single whitespace-separated AS_PATH token, to
// p: a bare number extends the path, "{a,b,c}" is parsed as an AS_SET.
func (p *Path) AppendParsed(tok string) error {
	tok = strings.TrimSpace(tok)
	if len(tok) == 0 {
		return nil
	}
	if tok[0] == '{' && tok[len(tok)-1] == '}' {
		parts := strings.Split(tok[1:len(tok)-1], ",")
		set := make([]uint32, 0, len(parts))
		for _, part := range parts {
			asn, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
			if err != nil {
				return fmt.Errorf("aspath: invalid AS_SET member %q: %w", part, err)
			}
			set = append(set, uint32(asn))
		}
		p.Append(set...)
		return nil
	}
	asn, err := strconv.ParseUint(tok, 10, 32)
	if err != nil {
		return fmt.Errorf("aspath: invalid ASN %q: %w", tok, err)
	}
	p.Append(uint32(asn))
	return nil
}

// Parse parses a whitespace-separated AS_PATH string, eg. "65001 65002 {65003,65004}".
func Parse(s string) (Path, error) {
	var p Path
	for _, tok := range strings.Fields(s) {
		if err := p.AppendParsed(tok); err != nil {
			return Path{}, err
		}
	}
	return p, nil
}

// String formats the path the conventional way: space-separated hops,
// AS_SET members comma-joined inside braces.
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p.Segments {
		if i > 0 {
			b.WriteByte(' ')
		}
		if seg.Set {
			b.WriteByte('{')
			for j, asn := range seg.ASNs {
				if j > 0 {
					b.WriteByte(',')
				}
				b.WriteString(strconv.FormatUint(uint64(asn), 10))
			}
			b.WriteByte('}')
		} else {
			for j, asn := range seg.ASNs {
				if j > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(strconv.FormatUint(uint64(asn), 10))
			}
		}
	}
	return b.String()
}
