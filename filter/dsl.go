package filter

import (
	"fmt"
	"strings"
)

// dslState is one of the four clause states spec.md §4.8 names: TERM,
// PREFIXEXT, VALUE (plain or quoted), ENDVALUE.
type dslState int

const (
	stTerm dslState = iota
	stPrefixExt
	stValue
	stQuotedValue
	stEndValue
)

// KindExtCommunity is accepted by the DSL's alias table (`extc`,
// `extcommunity`) but has no backing field in Store: extended communities
// are not part of the Filter Store data model in spec.md §4.1. Add logs
// and ignores it, same as any other unrecognized kind.
const KindExtCommunity Kind = "extcommunity"

// ParseDSL parses a whitespace-tokenized filter string into a fresh Store.
// Grammar, ported token-for-token from
// original_source/lib/bgpstream_filter_parser.c's state machine: TERM,
// optional PREFIXEXT (after "prefix", one of any/more/less/exact,
// defaulting to "more"), VALUE (plain or "quoted, possibly multi-token"),
// ENDVALUE (expects the literal "and" or end of string). ParseDSL allocates
// a new Store on every call and has no shared state, so it is idempotent:
// parsing the same string twice yields two equally-configured stores.
func ParseDSL(s string) (*Store, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, ErrEmpty
	}

	store := NewStore()
	state := stTerm
	var kind Kind
	var quoted []string

	finalize := func(value string) error {
		quoted = nil
		return store.Add(kind, value)
	}

	for _, tok := range tokens {
		switch state {
		case stTerm:
			k, needsExt, err := parseTerm(tok)
			if err != nil {
				return nil, err
			}
			kind = k
			if needsExt {
				state = stPrefixExt
			} else {
				state = stValue
			}

		case stPrefixExt:
			switch tok {
			case "any":
				kind = KindPrefixAny
				state = stValue
			case "more":
				kind = KindPrefixMore
				state = stValue
			case "less":
				kind = KindPrefixLess
				state = stValue
			case "exact":
				kind = KindPrefixExact
				state = stValue
			default:
				// not an ext keyword: this token is the value, default ext "more" stands
				if err := consumeValue(tok, &state, &quoted, finalize); err != nil {
					return nil, err
				}
			}

		case stValue:
			if err := consumeValue(tok, &state, &quoted, finalize); err != nil {
				return nil, err
			}

		case stQuotedValue:
			if err := consumeQuoted(tok, &state, &quoted, finalize); err != nil {
				return nil, err
			}

		case stEndValue:
			if tok != "and" {
				return nil, ErrConjunction
			}
			state = stTerm
		}
	}

	switch state {
	case stEndValue:
		// clean end
	case stTerm:
		return nil, fmt.Errorf("%w: dangling conjunction at end of string", ErrConjunction)
	default:
		return nil, ErrOpValue
	}

	if err := store.Validate(); err != nil {
		return nil, err
	}
	return store, nil
}

// parseTerm resolves a TERM token via the alias table spec.md §4.8 names.
func parseTerm(tok string) (Kind, bool, error) {
	switch strings.ToLower(tok) {
	case "project", "proj":
		return KindProject, false, nil
	case "collector", "coll":
		return KindCollector, false, nil
	case "type":
		return KindDumpKind, false, nil
	case "peer":
		return KindPeerASN, false, nil
	case "prefix":
		return KindPrefixMore, true, nil
	case "community", "comm":
		return KindCommunity, false, nil
	case "aspath", "path":
		return KindASPath, false, nil
	case "extcommunity", "extc":
		return KindExtCommunity, false, nil
	case "ipversion", "ipv":
		return KindIPVersion, false, nil
	case "elemtype":
		return KindElemKind, false, nil
	default:
		return "", false, fmt.Errorf("%w: %q", ErrTerm, tok)
	}
}

// consumeValue handles a VALUE-state token: a leading '"' opens a (possibly
// multi-token) quoted value, anything else is a complete plain value.
func consumeValue(tok string, state *dslState, quoted *[]string, finalize func(string) error) error {
	if len(tok) > 0 && tok[0] == '"' {
		*state = stQuotedValue
		return consumeQuoted(tok[1:], state, quoted, finalize)
	}
	*state = stEndValue
	return finalize(tok)
}

// consumeQuoted accumulates one token of a quoted value, closing and
// committing it as soon as a '"' is found.
func consumeQuoted(tok string, state *dslState, quoted *[]string, finalize func(string) error) error {
	if idx := strings.IndexByte(tok, '"'); idx >= 0 {
		if part := tok[:idx]; len(part) > 0 {
			*quoted = append(*quoted, part)
		}
		*state = stEndValue
		return finalize(strings.Join(*quoted, " "))
	}
	if len(tok) > 0 {
		*quoted = append(*quoted, tok)
	}
	return nil
}
