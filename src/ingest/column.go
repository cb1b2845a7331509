package ingest

import (
	"strings"
	"unicode"
)

// ColumnKind tells how a source column participates in the graph.
type ColumnKind int

const (
	// ColumnIgnored columns never reach the store.
	ColumnIgnored ColumnKind = iota
	// ColumnEdge columns hold identifiers of other records.
	ColumnEdge
	// ColumnProperty columns become node properties as-is.
	ColumnProperty
)

func (k ColumnKind) String() string {
	switch k {
	case ColumnIgnored:
		return "ignored"
	case ColumnEdge:
		return "edge"
	case ColumnProperty:
		return "property"
	}
	panic("invalid column kind")
}

const (
	ignorePrefix   = "_"
	labelSeparator = "__"
)

// Classify maps a column name to its ColumnKind. The decision is made
// on the name alone: a leading underscore marks a reserved column, an
// all-uppercase name (checked up to the first "__", so that a column may
// carry metadata in its suffix) marks an edge column, anything else is
// a plain property.
func Classify(name string) ColumnKind {
	if strings.HasPrefix(name, ignorePrefix) {
		return ColumnIgnored
	}

	if isUpper(EdgeLabel(name)) {
		return ColumnEdge
	}

	return ColumnProperty
}

// EdgeLabel derives the relationship type from an edge column name:
// everything starting at the first "__" is dropped.
func EdgeLabel(name string) string {
	if i := strings.Index(name, labelSeparator); i >= 0 {
		return name[:i]
	}

	return name
}

// isUpper mirrors the usual "is this name shouting" check: at least one
// letter, and no lowercase ones. Digits and punctuation don't count.
func isUpper(s string) bool {
	hasLetter := false

	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}

		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}

	return hasLetter
}
