package proxy

import (
	"strconv"
)

// SelectorKind identifies how a Selector matches a record.
type SelectorKind int

const (
	// SelectDefault picks the first record.
	SelectDefault SelectorKind = iota
	// SelectOrdinal picks the record at a zero-based index.
	SelectOrdinal
	// SelectAddress picks the first record whose "host:port" equals the literal.
	SelectAddress
	// SelectLabel picks the first record whose "host:port (username)" equals the literal.
	SelectLabel
)

func (k SelectorKind) String() string {
	switch k {
	case SelectDefault:
		return "default"
	case SelectOrdinal:
		return "ordinal"
	case SelectAddress:
		return "address"
	case SelectLabel:
		return "label"
	default:
		return "unknown"
	}
}

// Selector chooses one proxy record from an ordered list.
type Selector struct {
	Kind    SelectorKind
	Index   int
	Literal string
}

// Default returns the first-record selector.
func Default() Selector {
	return Selector{Kind: SelectDefault}
}

// Ordinal returns a selector for the record at index i.
func Ordinal(i int) Selector {
	return Selector{Kind: SelectOrdinal, Index: i}
}

// Address returns a selector matching "host:port" verbatim.
func Address(hostPort string) Selector {
	return Selector{Kind: SelectAddress, Literal: hostPort}
}

// ByLabel returns a selector matching the display label "host:port (username)".
func ByLabel(label string) Selector {
	return Selector{Kind: SelectLabel, Literal: label}
}

// ParseSelector turns user input into a Selector.
//
// An empty string selects the default record. A string made only of decimal
// digits is always an ordinal, even if a record happens to have that exact
// address. Anything else is matched as "host:port".
func ParseSelector(s string) Selector {
	if s == "" {
		return Default()
	}
	if isDigits(s) {
		idx, err := strconv.Atoi(s)
		if err != nil {
			// Too large for int: no record can sit at that index.
			return Ordinal(-1)
		}
		return Ordinal(idx)
	}
	return Address(s)
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectDefault:
		return "default"
	case SelectOrdinal:
		return strconv.Itoa(s.Index)
	default:
		return s.Literal
	}
}

// MarshalText encodes the selector as it would be typed on the command line.
func (s Selector) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Select applies sel to records. The boolean is false when nothing matches.
func Select(records []Record, sel Selector) (Record, bool) {
	switch sel.Kind {
	case SelectDefault:
		if len(records) == 0 {
			return Record{}, false
		}
		return records[0], true

	case SelectOrdinal:
		if sel.Index < 0 || sel.Index >= len(records) {
			return Record{}, false
		}
		return records[sel.Index], true

	case SelectAddress:
		for _, r := range records {
			if r.Address() == sel.Literal {
				return r, true
			}
		}

	case SelectLabel:
		for _, r := range records {
			if r.Label() == sel.Literal {
				return r, true
			}
		}
	}
	return Record{}, false
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
