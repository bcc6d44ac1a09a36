package treesitter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

type docs map[string]*lens.Document

func (d docs) Document(uri string) (*lens.Document, bool) {
	doc, ok := d[uri]
	return doc, ok
}

const (
	tsURI   = "file:///repo/src/widget.ts"
	textURI = "file:///repo/README.txt"
)

func newTestHost() *Host {
	return NewHost(docs{
		tsURI:   lens.NewDocument(tsURI, "typescript", 1, "function helper() {}\n"),
		textURI: lens.NewDocument(textURI, "plaintext", 1, "hello\n"),
	}, nil)
}

func TestHost_Covers(t *testing.T) {
	h := newTestHost()
	assert.Equal(t, Available(), h.Covers(tsURI))
	assert.False(t, h.Covers(textURI))
	assert.False(t, h.Covers("file:///repo/closed.ts"))
}

func TestHost_Outline(t *testing.T) {
	h := newTestHost()

	_, err := h.Outline(context.Background(), "file:///repo/closed.ts")
	assert.True(t, lenserrors.HasCode(err, lenserrors.MissingData))

	_, err = h.Outline(context.Background(), textURI)
	assert.True(t, lenserrors.HasCode(err, lenserrors.BackendUnavailable))

	nodes, err := h.Outline(context.Background(), tsURI)
	if !Available() {
		assert.True(t, lenserrors.HasCode(err, lenserrors.BackendUnavailable))
		return
	}
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	sym, ok := nodes[0].(*lens.DocumentSymbol)
	require.True(t, ok)
	assert.Equal(t, "helper", sym.Name)
	assert.Equal(t, lens.KindFunction, sym.Kind)
}

func TestHost_ReferencesFallThrough(t *testing.T) {
	_, err := newTestHost().References(context.Background(), tsURI, lens.Position{})
	assert.True(t, lenserrors.HasCode(err, lenserrors.BackendUnavailable))
}
