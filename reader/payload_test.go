package reader

import (
	"net/netip"
	"testing"

	"github.com/bgpfix/bgpfix/attrs"

	"github.com/bgpstream/bgpstream/ipaddr"
	"github.com/bgpstream/bgpstream/record"
)

func buildAttrs(t *testing.T, asPath []uint32, nextHop string, comms [][2]uint16) attrs.Attrs {
	t.Helper()
	var ats attrs.Attrs
	ats.Init()

	ap := ats.Use(attrs.ATTR_ASPATH).(*attrs.Aspath)
	ap.Segments = []attrs.AspathSegment{{IsSet: false, List: asPath}}

	nh := ats.Use(attrs.ATTR_NEXTHOP).(*attrs.IP)
	nh.Addr = netip.MustParseAddr(nextHop)

	if len(comms) > 0 {
		c := ats.Use(attrs.ATTR_COMMUNITY).(*attrs.Community)
		for _, pair := range comms {
			c.ASN = append(c.ASN, pair[0])
			c.Value = append(c.Value, pair[1])
		}
	}
	return ats
}

func TestUpdatePayloadExpand(t *testing.T) {
	ats := buildAttrs(t, []uint32{65001, 65002}, "192.0.2.1", [][2]uint16{{65001, 100}})

	p := &updatePayload{
		timestamp: 1700000000,
		peerAddr:  ipaddr.FromAddr(netip.MustParseAddr("198.51.100.1")),
		peerASN:   65001,
		reach:     []netip.Prefix{netip.MustParsePrefix("203.0.113.0/24")},
		unreach:   []netip.Prefix{netip.MustParsePrefix("203.0.114.0/24")},
		attrs:     ats,
	}

	elems := p.Expand()
	if len(elems) != 2 {
		t.Fatalf("expected 2 elements, got %d", len(elems))
	}

	announce := elems[0]
	if announce.Kind != record.ElemAnnounce {
		t.Errorf("elems[0].Kind = %s", announce.Kind)
	}
	if announce.Prefix.String() != "203.0.113.0/24" {
		t.Errorf("announce prefix = %s", announce.Prefix.String())
	}
	if announce.NextHop.String() != "192.0.2.1" {
		t.Errorf("announce next hop = %s", announce.NextHop.String())
	}
	if announce.ASPath.Len() != 2 {
		t.Errorf("announce as path len = %d", announce.ASPath.Len())
	}
	if len(announce.Communities) != 1 || announce.Communities[0].ASN != 65001 {
		t.Errorf("announce communities = %+v", announce.Communities)
	}

	withdraw := elems[1]
	if withdraw.Kind != record.ElemWithdraw {
		t.Errorf("elems[1].Kind = %s", withdraw.Kind)
	}
	if withdraw.Prefix.String() != "203.0.114.0/24" {
		t.Errorf("withdraw prefix = %s", withdraw.Prefix.String())
	}
	if withdraw.ASPath.Len() != 0 {
		t.Errorf("withdraw must carry no AS path, got len %d", withdraw.ASPath.Len())
	}
	if withdraw.Communities != nil {
		t.Errorf("withdraw must carry no communities, got %+v", withdraw.Communities)
	}
}

func TestRIBPayloadExpand(t *testing.T) {
	ats := buildAttrs(t, []uint32{65010}, "198.51.100.9", nil)

	p := &ribPayload{
		timestamp: 1700000001,
		prefix:    ipaddr.FromNetipPrefix(netip.MustParsePrefix("2001:db8::/32")),
		rows: []ribRow{
			{peer: peerEntry{addr: ipaddr.FromAddr(netip.MustParseAddr("192.0.2.1")), asn: 65001}, attrs: ats},
			{peer: peerEntry{addr: ipaddr.FromAddr(netip.MustParseAddr("192.0.2.2")), asn: 65002}, attrs: ats},
		},
	}

	elems := p.Expand()
	if len(elems) != 2 {
		t.Fatalf("expected 2 elements (one per peer row), got %d", len(elems))
	}
	for i, e := range elems {
		if e.Kind != record.ElemRIB {
			t.Errorf("elems[%d].Kind = %s", i, e.Kind)
		}
		if e.Prefix.String() != "2001:db8::/32" {
			t.Errorf("elems[%d].Prefix = %s", i, e.Prefix.String())
		}
	}
	if elems[0].PeerASN != 65001 || elems[1].PeerASN != 65002 {
		t.Errorf("peer ASNs = %d, %d", elems[0].PeerASN, elems[1].PeerASN)
	}
}
