package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typelens/internal/lens"
)

func TestDocuments_Change(t *testing.T) {
	rng := func(sl, sc, el, ec int) *lens.Range {
		r := lens.NewRange(sl, sc, el, ec)
		return &r
	}

	testCases := []struct {
		name    string
		initial string
		changes []contentChange
		want    string
	}{
		{
			name:    "full replacement",
			initial: "let a = 1\n",
			changes: []contentChange{{Text: "let b = 2\n"}},
			want:    "let b = 2\n",
		},
		{
			name:    "insert inside line",
			initial: "function foo() {}\n",
			changes: []contentChange{{Range: rng(0, 13, 0, 13), Text: "a, b"}},
			want:    "function foo(a, b) {}\n",
		},
		{
			name:    "delete across lines",
			initial: "one\ntwo\nthree\n",
			changes: []contentChange{{Range: rng(0, 3, 2, 0), Text: "\n"}},
			want:    "one\nthree\n",
		},
		{
			name:    "edits apply in order",
			initial: "abc",
			changes: []contentChange{
				{Range: rng(0, 0, 0, 1), Text: "X"},
				{Range: rng(0, 3, 0, 3), Text: "Y"},
			},
			want: "XbcY",
		},
		{
			name:    "positions count utf-16 units",
			initial: "const s = \"😀\"; x\n",
			changes: []contentChange{{Range: rng(0, 16, 0, 17), Text: "y"}},
			want:    "const s = \"😀\"; y\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			docs := NewDocuments()
			docs.Open(appURI, "typescript", 1, tc.initial)

			doc, ok := docs.Change(appURI, 2, tc.changes)
			require.True(t, ok)
			assert.Equal(t, tc.want, doc.FullText())
			assert.Equal(t, 2, doc.Version)
			assert.Equal(t, "typescript", doc.LanguageID)
		})
	}
}

func TestDocuments_Lifecycle(t *testing.T) {
	docs := NewDocuments()

	_, ok := docs.Change(appURI, 2, []contentChange{{Text: "x"}})
	assert.False(t, ok)

	docs.Open(appURI, "typescript", 1, "x")
	assert.Equal(t, 1, docs.Len())

	doc, ok := docs.Document(appURI)
	require.True(t, ok)
	assert.Equal(t, "x", doc.FullText())

	closed, ok := docs.Close(appURI)
	require.True(t, ok)
	assert.Equal(t, "typescript", closed.LanguageID)
	assert.Equal(t, 0, docs.Len())

	_, ok = docs.Document(appURI)
	assert.False(t, ok)
}
