package lens

import (
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"
)

// wordSeparators is the editor's default set of non-word characters.
const wordSeparators = "`~!@#$%^&*()-=+[{]}\\|;:'\",.<>/?"

// Document is an immutable text snapshot addressed in UTF-16 code units,
// the unit LSP positions use.
type Document struct {
	URI        string
	LanguageID string
	Version    int

	units      []uint16
	lineStarts []int
}

// NewDocument snapshots text for uri.
func NewDocument(uri, languageID string, version int, text string) *Document {
	units := utf16.Encode([]rune(text))
	lineStarts := []int{0}
	for i, u := range units {
		if u == '\n' {
			lineStarts = append(lineStarts, i+1)
		}
	}
	return &Document{
		URI:        uri,
		LanguageID: languageID,
		Version:    version,
		units:      units,
		lineStarts: lineStarts,
	}
}

// Len returns the document length in UTF-16 code units.
func (d *Document) Len() int {
	return len(d.units)
}

// LineCount returns the number of lines.
func (d *Document) LineCount() int {
	return len(d.lineStarts)
}

// lineEnd returns the offset just past the last character of line, newline
// (and a preceding carriage return) excluded.
func (d *Document) lineEnd(line int) int {
	end := len(d.units)
	if line+1 < len(d.lineStarts) {
		end = d.lineStarts[line+1] - 1
		if end > d.lineStarts[line] && d.units[end-1] == '\r' {
			end--
		}
	}
	return end
}

// ValidatePosition clamps p into the document.
func (d *Document) ValidatePosition(p Position) Position {
	if p.Line < 0 {
		return Position{}
	}
	if p.Line >= len(d.lineStarts) {
		last := len(d.lineStarts) - 1
		return Position{Line: last, Character: d.lineEnd(last) - d.lineStarts[last]}
	}
	if p.Character < 0 {
		p.Character = 0
	}
	if limit := d.lineEnd(p.Line) - d.lineStarts[p.Line]; p.Character > limit {
		p.Character = limit
	}
	return p
}

// OffsetAt converts a position to a document offset, clamping out-of-range
// positions the way editors do.
func (d *Document) OffsetAt(p Position) int {
	p = d.ValidatePosition(p)
	return d.lineStarts[p.Line] + p.Character
}

// PositionAt converts an offset to a position, clamping to the document.
func (d *Document) PositionAt(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.units) {
		offset = len(d.units)
	}
	lo, hi := 0, len(d.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if d.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	char := offset - d.lineStarts[lo]
	if limit := d.lineEnd(lo) - d.lineStarts[lo]; char > limit {
		char = limit
	}
	return Position{Line: lo, Character: char}
}

// Text returns the text covered by r.
func (d *Document) Text(r Range) string {
	start, end := d.OffsetAt(r.Start), d.OffsetAt(r.End)
	if end < start {
		start, end = end, start
	}
	return string(utf16.Decode(d.units[start:end]))
}

// FullText returns the whole document.
func (d *Document) FullText() string {
	return string(utf16.Decode(d.units))
}

func isWordUnit(u uint16) bool {
	if u < utf8.RuneSelf {
		r := rune(u)
		return !unicode.IsSpace(r) && !strings.ContainsRune(wordSeparators, r)
	}
	if utf16.IsSurrogate(rune(u)) {
		return true
	}
	return !unicode.IsSpace(rune(u))
}

// WordRangeAt returns the word touching p, or false when p is not at or
// directly after a word character.
func (d *Document) WordRangeAt(p Position) (Range, bool) {
	p = d.ValidatePosition(p)
	lineStart := d.lineStarts[p.Line]
	lineEnd := d.lineEnd(p.Line)
	offset := lineStart + p.Character

	start := offset
	for start > lineStart && isWordUnit(d.units[start-1]) {
		start--
	}
	end := offset
	for end < lineEnd && isWordUnit(d.units[end]) {
		end++
	}
	if start == end {
		return Range{}, false
	}
	return Range{
		Start: Position{Line: p.Line, Character: start - lineStart},
		End:   Position{Line: p.Line, Character: end - lineStart},
	}, true
}
