// Package community represents BGP communities and community sets as the
// filter engine needs them: a (asn, value) pair plus wildcard matching,
// modeled on bgpfix/attrs.Community's ASN/Value pairing.
package community

import (
	"fmt"
	"strconv"
	"strings"
)

// Wildcard matches any ASN or value in a community match expression.
const Wildcard = -1

// Community is a plain (asn, value) pair, eg. "65001:100".
type Community struct {
	ASN   uint32
	Value uint32
}

func (c Community) String() string {
	return fmt.Sprintf("%d:%d", c.ASN, c.Value)
}

// Matcher is a community match pattern: either side may be Wildcard.
type Matcher struct {
	ASN   int64 // Wildcard or a concrete ASN
	Value int64 // Wildcard or a concrete value
}

// Matches returns true iff c matches m.
func (m Matcher) Matches(c Community) bool {
	if m.ASN != Wildcard && uint32(m.ASN) != c.ASN {
		return false
	}
	if m.Value != Wildcard && uint32(m.Value) != c.Value {
		return false
	}
	return true
}

func (m Matcher) String() string {
	asn, val := "*", "*"
	if m.ASN != Wildcard {
		asn = strconv.FormatInt(m.ASN, 10)
	}
	if m.Value != Wildcard {
		val = strconv.FormatInt(m.Value, 10)
	}
	return asn + ":" + val
}

// ParseMatcher parses "asn:value", where either half may be "*".
func ParseMatcher(s string) (Matcher, error) {
	asnS, valS, ok := strings.Cut(s, ":")
	if !ok {
		return Matcher{}, fmt.Errorf("community: invalid matcher %q, want asn:value", s)
	}

	m := Matcher{}
	if asnS == "*" {
		m.ASN = Wildcard
	} else {
		v, err := strconv.ParseUint(asnS, 10, 32)
		if err != nil {
			return Matcher{}, fmt.Errorf("community: invalid asn in %q: %w", s, err)
		}
		m.ASN = int64(v)
	}

	if valS == "*" {
		m.Value = Wildcard
	} else {
		v, err := strconv.ParseUint(valS, 10, 32)
		if err != nil {
			return Matcher{}, fmt.Errorf("community: invalid value in %q: %w", s, err)
		}
		m.Value = int64(v)
	}

	return m, nil
}

// Set is an insertion-ordered collection of communities with membership
// queries (spec.md §3: "insertion-ordered collection with membership queries").
type Set struct {
	items []Community
}

// Add appends c to the set if not already present.
func (s *Set) Add(c Community) {
	if s.Has(c) {
		return
	}
	s.items = append(s.items, c)
}

// Has returns true iff c is already in the set.
func (s *Set) Has(c Community) bool {
	for _, item := range s.items {
		if item == c {
			return true
		}
	}
	return false
}

// Items returns the communities in insertion order. Callers must not mutate
// the returned slice.
func (s *Set) Items() []Community {
	return s.items
}

// Len returns the number of communities in the set.
func (s *Set) Len() int {
	return len(s.items)
}

// MatchAny returns true iff at least one of communities matches any matcher
// in matchers (spec.md §4.1 item 5: "at least one configured community must
// match at least one element community").
func MatchAny(matchers []Matcher, communities []Community) bool {
	for _, m := range matchers {
		for _, c := range communities {
			if m.Matches(c) {
				return true
			}
		}
	}
	return false
}
