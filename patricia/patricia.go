// Package patricia implements the prefix index behind the filter engine's
// prefix set: a binary trie over address bits answering exact, less-specific,
// more-specific, and any-overlap containment queries (spec.md §3, §4.1 item
// 3), plus /24 and /64 coverage counters. Grounded on the insert-by-bits,
// walk-and-aggregate shape of Emeline-1-anaximander_simulator/overlays_processing.go's
// tree, rebuilt here directly against net/netip prefixes rather than that
// tree's bespoke node format.
package patricia

import (
	"net/netip"

	"github.com/bgpstream/bgpstream/ipaddr"
)

type node struct {
	children [2]*node
	present  bool
	prefix   ipaddr.Prefix
}

// Tree is a prefix index, separated internally into an IPv4 trie and an
// IPv6 trie since the two address families never share a bit path. The
// zero value is an empty, ready-to-use tree.
type Tree struct {
	root4 *node
	root6 *node
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{}
}

func addrBytes(a ipaddr.Address) []byte {
	if a.Is4() {
		b := a.As4()
		return b[:]
	}
	b := a.As16()
	return b[:]
}

func bitAt(b []byte, i int) int {
	return int(b[i/8]>>(7-uint(i%8))) & 1
}

func (t *Tree) rootFor(v6 bool, create bool) **node {
	if v6 {
		return &t.root6
	}
	return &t.root4
}

// Insert adds p to the tree. Inserting the same prefix twice replaces the
// stored value (the tree does not track duplicate insertions).
func (t *Tree) Insert(p ipaddr.Prefix) {
	rootp := t.rootFor(p.Address().IsV6(), true)
	if *rootp == nil {
		*rootp = &node{}
	}
	cur := *rootp
	bytes := addrBytes(p.Address())
	for i := 0; i < p.Bits(); i++ {
		bit := bitAt(bytes, i)
		if cur.children[bit] == nil {
			cur.children[bit] = &node{}
		}
		cur = cur.children[bit]
	}
	cur.present = true
	cur.prefix = p
}

// pathNodes walks from the root of p's family along p's address bits, up to
// p.Bits() levels, returning every node visited (including the root, at
// index 0). The walk stops early if the trie runs out of nodes, so the
// returned slice may be shorter than p.Bits()+1.
func (t *Tree) pathNodes(p ipaddr.Prefix) []*node {
	root := *t.rootFor(p.Address().IsV6(), false)
	if root == nil {
		return nil
	}
	bytes := addrBytes(p.Address())
	nodes := make([]*node, 1, p.Bits()+1)
	nodes[0] = root
	cur := root
	for i := 0; i < p.Bits(); i++ {
		bit := bitAt(bytes, i)
		if cur.children[bit] == nil {
			return nodes
		}
		cur = cur.children[bit]
		nodes = append(nodes, cur)
	}
	return nodes
}

// Exact reports whether p itself was inserted.
func (t *Tree) Exact(p ipaddr.Prefix) (ipaddr.Prefix, bool) {
	nodes := t.pathNodes(p)
	if len(nodes) != p.Bits()+1 {
		return ipaddr.Prefix{}, false
	}
	n := nodes[len(nodes)-1]
	if !n.present {
		return ipaddr.Prefix{}, false
	}
	return n.prefix, true
}

// LessSpecific returns every inserted prefix that strictly contains p
// (ancestors on p's bit path, excluding p itself).
func (t *Tree) LessSpecific(p ipaddr.Prefix) []ipaddr.Prefix {
	nodes := t.pathNodes(p)
	limit := len(nodes)
	if limit > p.Bits() {
		limit = p.Bits()
	}
	var out []ipaddr.Prefix
	for _, n := range nodes[:limit] {
		if n.present {
			out = append(out, n.prefix)
		}
	}
	return out
}

// MoreSpecific returns every inserted prefix strictly contained by p
// (descendants of p's node, excluding p itself).
func (t *Tree) MoreSpecific(p ipaddr.Prefix) []ipaddr.Prefix {
	nodes := t.pathNodes(p)
	if len(nodes) <= p.Bits() {
		return nil
	}
	var out []ipaddr.Prefix
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		walk(n.children[0])
		walk(n.children[1])
		if n.present {
			out = append(out, n.prefix)
		}
	}
	sub := nodes[p.Bits()]
	walk(sub.children[0])
	walk(sub.children[1])
	return out
}

// Covers reports whether some inserted prefix is equal to p or a
// less-specific ancestor of p (spec.md §4.1 item 3: "exact, less-specific").
func (t *Tree) Covers(p ipaddr.Prefix) bool {
	nodes := t.pathNodes(p)
	limit := len(nodes)
	if limit > p.Bits()+1 {
		limit = p.Bits() + 1
	}
	for _, n := range nodes[:limit] {
		if n.present {
			return true
		}
	}
	return false
}

// Reaches reports whether some inserted prefix is equal to p or nested
// inside p (a more-specific descendant).
func (t *Tree) Reaches(p ipaddr.Prefix) bool {
	nodes := t.pathNodes(p)
	if len(nodes) == p.Bits()+1 && nodes[p.Bits()].present {
		return true
	}
	return len(t.MoreSpecific(p)) > 0
}

// AnyOverlap reports whether some inserted prefix overlaps p in any way:
// exact, less-specific, or more-specific.
func (t *Tree) AnyOverlap(p ipaddr.Prefix) bool {
	return t.Covers(p) || t.Reaches(p)
}

func (t *Tree) walkAll(root *node, fn func(ipaddr.Prefix)) {
	if root == nil {
		return
	}
	var walk func(n *node)
	walk = func(n *node) {
		if n == nil {
			return
		}
		if n.present {
			fn(n.prefix)
		}
		walk(n.children[0])
		walk(n.children[1])
	}
	walk(root)
}

// Empty reports whether no prefix has ever been inserted.
func (t *Tree) Empty() bool {
	return t.root4 == nil && t.root6 == nil
}

// Count24 returns the number of distinct /24 IPv4 networks touched by
// inserted prefixes. A prefix broader than /24 counts as a single covered
// /24 (its own network truncated to 24 bits), not the full set of /24s it
// spans — this is a coverage estimate, not an exhaustive enumeration.
func (t *Tree) Count24() int {
	seen := make(map[netip.Prefix]struct{})
	t.walkAll(t.root4, func(p ipaddr.Prefix) {
		bits := p.Bits()
		if bits > 24 {
			bits = 24
		}
		np, err := p.Prefix.Addr().Prefix(bits)
		if err != nil {
			return
		}
		seen[np.Masked()] = struct{}{}
	})
	return len(seen)
}

// Count64 returns the number of distinct /64 IPv6 networks touched by
// inserted prefixes, with the same single-ancestor coverage estimate as
// Count24.
func (t *Tree) Count64() int {
	seen := make(map[netip.Prefix]struct{})
	t.walkAll(t.root6, func(p ipaddr.Prefix) {
		bits := p.Bits()
		if bits > 64 {
			bits = 64
		}
		np, err := p.Prefix.Addr().Prefix(bits)
		if err != nil {
			return
		}
		seen[np.Masked()] = struct{}{}
	})
	return len(seen)
}
