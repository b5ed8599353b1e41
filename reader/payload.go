package reader

import (
	"net/netip"

	"github.com/bgpfix/bgpfix/attrs"

	"github.com/bgpstream/bgpstream/aspath"
	"github.com/bgpstream/bgpstream/ipaddr"
	"github.com/bgpstream/bgpstream/record"
)

// updatePayload is the Expander for a BGP4MP UPDATE entry: one
// record.ElemAnnounce per reachable prefix, one record.ElemWithdraw per
// withdrawn prefix, covering both classic IPv4 NLRI and the MP_REACH/
// MP_UNREACH-carried NLRI of other address families.
type updatePayload struct {
	timestamp int64
	peerAddr  ipaddr.Address
	peerASN   uint32
	reach     []netip.Prefix
	unreach   []netip.Prefix
	attrs     attrs.Attrs
}

func (p *updatePayload) Expand() []record.Element {
	var base record.Element
	base.Timestamp = p.timestamp
	base.PeerAddress = p.peerAddr
	base.PeerASN = p.peerASN
	attrsToElement(&base, &p.attrs)

	reach := p.reach
	if mpReach, ok := mpReachPrefixes(&p.attrs, attrs.ATTR_MP_REACH); ok {
		reach = append(reach, mpReach...)
	}
	unreach := p.unreach
	if mpUnreach, ok := mpReachPrefixes(&p.attrs, attrs.ATTR_MP_UNREACH); ok {
		unreach = append(unreach, mpUnreach...)
	}

	elems := make([]record.Element, 0, len(reach)+len(unreach))
	for _, pfx := range reach {
		e := base
		e.Kind = record.ElemAnnounce
		e.Prefix = ipaddr.FromNetipPrefix(pfx)
		elems = append(elems, e)
	}
	for _, pfx := range unreach {
		e := base
		e.Kind = record.ElemWithdraw
		e.Prefix = ipaddr.FromNetipPrefix(pfx)
		// withdrawals carry no next hop or path attributes of their own
		e.NextHop = ipaddr.Address{}
		e.ASPath = aspath.Path{}
		e.Communities = nil
		elems = append(elems, e)
	}
	return elems
}

// ribRow is one PEER_INDEX-resolved row of a TABLE_DUMP2 RIB entry.
type ribRow struct {
	peer  peerEntry
	attrs attrs.Attrs
}

// ribPayload is the Expander for a TABLE_DUMP2 RIB_IPV4_UNICAST/
// RIB_IPV6_UNICAST entry: one record.ElemRIB per peer row sharing the
// entry's prefix.
type ribPayload struct {
	timestamp int64
	prefix    ipaddr.Prefix
	rows      []ribRow
}

func (p *ribPayload) Expand() []record.Element {
	elems := make([]record.Element, len(p.rows))
	for i, row := range p.rows {
		var e record.Element
		e.Kind = record.ElemRIB
		e.Timestamp = p.timestamp
		e.PeerAddress = row.peer.addr
		e.PeerASN = row.peer.asn
		e.Prefix = p.prefix
		attrsToElement(&e, &row.attrs)
		elems[i] = e
	}
	return elems
}

// statePayload is the Expander for a BGP4MP_STATE_CHANGE(_AS4) entry: a
// single record.ElemPeerState element.
type statePayload struct {
	timestamp int64
	peerAddr  ipaddr.Address
	peerASN   uint32
	oldState  record.PeerState
	newState  record.PeerState
}

func (p *statePayload) Expand() []record.Element {
	return []record.Element{{
		Kind:        record.ElemPeerState,
		Timestamp:   p.timestamp,
		PeerAddress: p.peerAddr,
		PeerASN:     p.peerASN,
		OldState:    p.oldState,
		NewState:    p.newState,
	}}
}
