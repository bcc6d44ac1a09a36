//go:build !cgo

package treesitter

import (
	"context"
	"errors"

	"typelens/internal/lens"
)

// errNoCGO is returned when parsing is unavailable due to missing CGO.
var errNoCGO = errors.New("tree-sitter outlines require CGO")

// Available reports whether this build can parse documents.
func Available() bool {
	return false
}

func parseOutline(ctx context.Context, grammar, text string) ([]lens.DocumentSymbol, error) {
	return nil, errNoCGO
}
