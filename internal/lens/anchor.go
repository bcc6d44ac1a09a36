package lens

import (
	"strings"
	"unicode/utf16"
)

// utf16Len returns the length of s in UTF-16 code units.
func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// ResolveAnchor finds the identifier token a label for name attaches to.
//
// When name occurs in the declaration text the scan runs forward from the
// declaration start, otherwise backward, bounded by the declaration length.
// Probes are len(name) units apart, so a token that straddles two probes can
// be missed; the declaration range is returned when nothing matches.
func ResolveAnchor(doc *Document, name string, decl Range) Range {
	step := utf16Len(name)
	if step == 0 {
		return decl
	}

	declText := doc.Text(decl)
	declLen := utf16Len(declText)
	start := doc.OffsetAt(decl.Start)

	var left, right *Range
	if strings.Contains(declText, name) {
		right = scanForWord(doc, name, start, func(off int) bool { return off < start+declLen }, step)
	} else {
		limit := max(start-declLen, 0)
		left = scanForWord(doc, name, start, func(off int) bool { return off > limit }, -step)
	}

	switch {
	case left == nil && right == nil:
		return decl
	case left != nil && right == nil:
		return *left
	case left == nil && right != nil:
		return *right
	}
	if start-doc.OffsetAt(left.Start) < doc.OffsetAt(right.Start)-start {
		return *left
	}
	return *right
}

func scanForWord(doc *Document, name string, from int, within func(int) bool, step int) *Range {
	for off := from; within(off); off += step {
		word, ok := doc.WordRangeAt(doc.PositionAt(off))
		if ok && doc.Text(word) == name {
			return &word
		}
	}
	return nil
}

// Collect runs the filter over symbols and resolves an anchor for every
// eligible one. Only the first symbol anchored at a given offset is kept.
func Collect(doc *Document, symbols []FlattenedSymbol, filter *Filter, pass uint64) []Candidate {
	seen := make(map[int]bool)
	out := make([]Candidate, 0, len(symbols))

	for _, sym := range symbols {
		if !filter.Eligible(sym, doc) {
			continue
		}
		anchor := ResolveAnchor(doc, sym.Name, *sym.Range)
		offset := doc.OffsetAt(anchor.Start)
		if seen[offset] {
			continue
		}
		seen[offset] = true
		out = append(out, Candidate{
			URI:         doc.URI,
			Name:        sym.Name,
			Kind:        sym.Kind,
			Declaration: *sym.Range,
			Anchor:      anchor,
			Offset:      offset,
			Pass:        pass,
		})
	}
	return out
}
