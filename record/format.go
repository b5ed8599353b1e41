package record

import (
	"strconv"
	"strings"

	"github.com/bgpstream/bgpstream/aspath"
	"github.com/bgpstream/bgpstream/community"
	"github.com/bgpstream/bgpstream/ipaddr"
)

// Char renders k as the single-character code
// bgpstream_record_dump_type_snprintf uses: 'R' for a RIB dump, 'U' for an
// update stream, empty for anything else.
func (k DumpKind) Char() string {
	switch k {
	case DumpRIB:
		return "R"
	case DumpUpdate:
		return "U"
	default:
		return ""
	}
}

// Char renders pos as bgpstream_record_dump_pos_snprintf does: B/M/E.
func (pos DumpPosition) Char() string {
	switch pos {
	case PositionStart:
		return "B"
	case PositionMiddle:
		return "M"
	case PositionEnd:
		return "E"
	default:
		return ""
	}
}

// Char renders st as bgpstream_record_status_snprintf does: V/F/E/S/R.
func (st Status) Char() string {
	switch st {
	case StatusValid:
		return "V"
	case StatusFilteredSource:
		return "F"
	case StatusEmptySource:
		return "E"
	case StatusCorruptedSource:
		return "S"
	case StatusCorruptedRecord:
		return "R"
	default:
		return ""
	}
}

// Char renders k as the single-character element-type code
// bgpreader.c's BGPSTREAM_ELEM_OUTPUT_FORMAT documents: R/A/W/S.
func (k ElementKind) Char() string {
	switch k {
	case ElemRIB:
		return "R"
	case ElemAnnounce:
		return "A"
	case ElemWithdraw:
		return "W"
	case ElemPeerState:
		return "S"
	default:
		return ""
	}
}

// FormatRecordLine renders r's record-control line:
// "<dump-type>|<dump-pos>|<status>|<dump-time>" (spec.md §4.9).
func FormatRecordLine(r *Record) string {
	return strings.Join([]string{
		r.DumpKind.Char(),
		r.DumpPosition.Char(),
		r.Status.Char(),
		strconv.FormatInt(r.DumpTime, 10),
	}, "|")
}

// FormatElementLine renders one element line in the canonical column order
// spec.md §4.9 fixes: "type|peer_asn|peer_ip|prefix|next_hop|as_path|
// origin_asn|communities|old_state|new_state", with empty segments for
// fields the element's kind doesn't carry. Communities render as
// space-separated "asn:value" pairs.
func FormatElementLine(e *Element) string {
	var cols [10]string
	cols[0] = e.Kind.Char()
	cols[1] = formatPeerASN(e.PeerASN)
	cols[2] = formatAddress(e.PeerAddress)

	if e.Kind == ElemPeerState {
		cols[8] = string(e.OldState)
		cols[9] = string(e.NewState)
		return strings.Join(cols[:], "|")
	}

	cols[3] = formatPrefix(e.Prefix)
	if e.Kind != ElemWithdraw {
		cols[4] = formatAddress(e.NextHop)
		cols[5] = e.ASPath.String()
		cols[6] = formatOrigin(e.ASPath)
		cols[7] = formatCommunities(e.Communities)
	}
	return strings.Join(cols[:], "|")
}

func formatPeerASN(asn uint32) string {
	if asn == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(asn), 10)
}

func formatAddress(a ipaddr.Address) string {
	if !a.IsValid() {
		return ""
	}
	return a.String()
}

func formatPrefix(p ipaddr.Prefix) string {
	if !p.IsValid() {
		return ""
	}
	return p.String()
}

func formatOrigin(path aspath.Path) string {
	origin := path.Origin()
	if len(origin) == 0 {
		return ""
	}
	parts := make([]string, len(origin))
	for i, asn := range origin {
		parts[i] = strconv.FormatUint(uint64(asn), 10)
	}
	return strings.Join(parts, ",")
}

func formatCommunities(cs []community.Community) string {
	if len(cs) == 0 {
		return ""
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}
