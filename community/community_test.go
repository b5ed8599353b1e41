package community

import "testing"

func TestMatcherWildcards(t *testing.T) {
	m, err := ParseMatcher("2914:*")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Matches(Community{ASN: 2914, Value: 1}) {
		t.Error("expected 2914:* to match 2914:1")
	}
	if m.Matches(Community{ASN: 1, Value: 1}) {
		t.Error("expected 2914:* not to match 1:1")
	}
}

func TestMatchAny(t *testing.T) {
	matchers := []Matcher{{ASN: 2914, Value: Wildcard}, {ASN: Wildcard, Value: 300}}
	comms := []Community{{ASN: 1, Value: 300}}
	if !MatchAny(matchers, comms) {
		t.Error("expected *:300 to match via second matcher")
	}
	if MatchAny(matchers, nil) {
		t.Error("no communities should never match")
	}
}

func TestSetInsertionOrderAndDedup(t *testing.T) {
	var s Set
	s.Add(Community{1, 1})
	s.Add(Community{2, 2})
	s.Add(Community{1, 1})
	if s.Len() != 2 {
		t.Fatalf("expected 2 distinct communities, got %d", s.Len())
	}
	if s.Items()[0] != (Community{1, 1}) {
		t.Error("insertion order not preserved")
	}
}
