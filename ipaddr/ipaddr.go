// Package ipaddr provides the address and prefix primitives used across
// bgpstream: a thin wrapper around net/netip, the representation bgpfix
// itself settled on for wire-level prefixes (see nlri.NLRI).
package ipaddr

import (
	"fmt"
	"net/netip"
)

// Address is a single IPv4 or IPv6 host address.
type Address struct {
	netip.Addr
}

// FromAddr wraps a, which must already be valid and unmapped.
func FromAddr(a netip.Addr) Address {
	return Address{a.Unmap()}
}

// ParseAddress parses s as an IPv4 or IPv6 address.
func ParseAddress(s string) (Address, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return Address{}, fmt.Errorf("ipaddr: %w", err)
	}
	return Address{a.Unmap()}, nil
}

// IsV6 returns true iff a is an IPv6 address.
func (a Address) IsV6() bool {
	return a.Is6()
}

// Equal returns true iff a and b represent the same address.
func (a Address) Equal(b Address) bool {
	return a.Addr == b.Addr
}

// Prefix is an address plus a mask length (0..32 for IPv4, 0..128 for IPv6).
type Prefix struct {
	netip.Prefix
}

// FromNetipPrefix wraps p, masking it first so the host bits are zeroed.
func FromNetipPrefix(p netip.Prefix) Prefix {
	return Prefix{p.Masked()}
}

// NewPrefix builds a Prefix from an address and mask length, masking the
// address in place (spec.md §3: "prefix-mask in place").
func NewPrefix(a Address, bits int) (Prefix, error) {
	p := netip.PrefixFrom(a.Addr, bits)
	if !p.IsValid() {
		return Prefix{}, fmt.Errorf("ipaddr: invalid prefix length %d for %s", bits, a)
	}
	return Prefix{p.Masked()}, nil
}

// ParsePrefix parses s as "addr/bits".
func ParsePrefix(s string) (Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return Prefix{}, fmt.Errorf("ipaddr: %w", err)
	}
	return Prefix{p.Masked()}, nil
}

// Address returns the prefix's base address.
func (p Prefix) Address() Address {
	return Address{p.Addr()}
}

// Bits returns the mask length.
func (p Prefix) Bits() int {
	return p.Prefix.Bits()
}

// Contains returns true iff p contains other (p is equal to or less specific
// than other, and both cover the same address space).
func (p Prefix) Contains(other Prefix) bool {
	if p.Addr().Is4() != other.Addr().Is4() {
		return false
	}
	return p.Bits() <= other.Bits() && p.Prefix.Contains(other.Addr())
}

// Equal returns true iff p and other are the same prefix.
func (p Prefix) Equal(other Prefix) bool {
	return p.Bits() == other.Bits() && p.Addr() == other.Addr()
}

// String formats the prefix as "addr/bits".
func (p Prefix) String() string {
	return p.Prefix.String()
}
