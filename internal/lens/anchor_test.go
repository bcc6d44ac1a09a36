package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typelens/internal/config"
)

func TestResolveAnchor(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		symbol string
		decl   Range
		want   Range
	}{
		{
			name:   "forward to identifier",
			text:   "export function fooBar(a) {}",
			symbol: "fooBar",
			decl:   NewRange(0, 0, 0, 28),
			want:   NewRange(0, 16, 0, 22),
		},
		{
			name:   "forward picks first occurrence",
			text:   "function foo() { return foo }",
			symbol: "foo",
			decl:   NewRange(0, 0, 0, 29),
			want:   NewRange(0, 9, 0, 12),
		},
		{
			name:   "backward when range starts after the identifier",
			text:   "const handler = () => {}",
			symbol: "handler",
			decl:   NewRange(0, 16, 0, 24),
			want:   NewRange(0, 6, 0, 13),
		},
		{
			name:   "backward scan bounded by declaration length",
			text:   "const someLongName = (x)",
			symbol: "someLongName",
			decl:   NewRange(0, 21, 0, 24),
			want:   NewRange(0, 21, 0, 24),
		},
		{
			name:   "substring only falls back to declaration",
			text:   "foobar x",
			symbol: "foo",
			decl:   NewRange(0, 0, 0, 8),
			want:   NewRange(0, 0, 0, 8),
		},
		{
			name:   "multi-line declaration",
			text:   "class Widget {\n  render() {}\n}",
			symbol: "render",
			decl:   NewRange(1, 2, 1, 13),
			want:   NewRange(1, 2, 1, 8),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := NewDocument("file:///a.ts", "typescript", 1, tt.text)
			assert.Equal(t, tt.want, ResolveAnchor(doc, tt.symbol, tt.decl))
		})
	}
}

func TestResolveAnchor_EmptyName(t *testing.T) {
	doc := NewDocument("u", "typescript", 1, "abc")
	decl := NewRange(0, 0, 0, 3)
	assert.Equal(t, decl, ResolveAnchor(doc, "", decl))
}

func TestResolveAnchor_ForwardWhenNameInDeclaration(t *testing.T) {
	// A name that occurs in the declaration never resolves before it.
	doc := NewDocument("u", "typescript", 1, "value; let value = value + 1")
	decl := NewRange(0, 7, 0, 28)
	got := ResolveAnchor(doc, "value", decl)
	assert.False(t, got.Start.Before(decl.Start))
	assert.Equal(t, "value", doc.Text(got))
}

func TestCollect_DedupByAnchorOffset(t *testing.T) {
	text := "class Foo {\n  constructor() {}\n  bar() {}\n}\n"
	doc := NewDocument("file:///a.ts", "typescript", 1, text)
	filter := NewFilter(NewEligibilityConfig(config.DefaultSettings()))

	symbols := []FlattenedSymbol{
		symbol(KindMethod, "bar", NewRange(2, 2, 2, 10)),
		symbol(KindClass, "Foo", NewRange(0, 0, 3, 1)),
		// Same anchor as the class; dropped.
		symbol(KindInterface, "Foo", NewRange(0, 0, 3, 1)),
		symbol(KindMethod, "ngOnInit", NewRange(1, 2, 1, 18)),
	}

	got := Collect(doc, symbols, filter, 7)
	require.Len(t, got, 2)

	assert.Equal(t, "bar", got[0].Name)
	assert.Equal(t, NewRange(2, 2, 2, 5), got[0].Anchor)
	assert.Equal(t, "Foo", got[1].Name)
	assert.Equal(t, KindClass, got[1].Kind)
	assert.Equal(t, NewRange(0, 6, 0, 9), got[1].Anchor)

	offsets := map[int]bool{}
	for _, c := range got {
		assert.False(t, offsets[c.Offset], "duplicate offset %d", c.Offset)
		offsets[c.Offset] = true
		assert.Equal(t, uint64(7), c.Pass)
		assert.Equal(t, doc.URI, c.URI)
		assert.Equal(t, doc.OffsetAt(c.Anchor.Start), c.Offset)
	}
}
