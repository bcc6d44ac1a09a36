package lens

// OutlineNode is one entry of a host outline. It is either a DocumentSymbol
// (hierarchical) or a SymbolInformation (flat, with an absolute location).
type OutlineNode interface {
	outlineNode()
}

// DocumentSymbol is a hierarchical outline entry.
type DocumentSymbol struct {
	Name           string
	Detail         string
	Kind           SymbolKind
	Range          Range
	SelectionRange Range
	Children       []DocumentSymbol
}

// SymbolInformation is a flat outline entry. Location may be nil when the
// host could not place the symbol.
type SymbolInformation struct {
	Name          string
	Kind          SymbolKind
	ContainerName string
	Location      *Location
}

func (*DocumentSymbol) outlineNode()    {}
func (*SymbolInformation) outlineNode() {}

// Flatten turns an outline into one ordered list. Hierarchical nodes are
// emitted post-order, so members precede their enclosing declaration. Flat
// nodes without a location are skipped.
func Flatten(nodes []OutlineNode) []FlattenedSymbol {
	out := make([]FlattenedSymbol, 0, len(nodes))

	var walk func(sym *DocumentSymbol)
	walk = func(sym *DocumentSymbol) {
		for i := range sym.Children {
			walk(&sym.Children[i])
		}
		r := sym.Range
		out = append(out, FlattenedSymbol{Kind: sym.Kind, Name: sym.Name, Range: &r})
	}

	for _, node := range nodes {
		switch n := node.(type) {
		case *DocumentSymbol:
			if n != nil {
				walk(n)
			}
		case *SymbolInformation:
			if n != nil && n.Location != nil {
				r := n.Location.Range
				out = append(out, FlattenedSymbol{Kind: n.Kind, Name: n.Name, Range: &r})
			}
		}
	}
	return out
}

// CountNodes returns the number of outline entries Flatten emits, children
// included. Flat entries without a location are not counted.
func CountNodes(nodes []OutlineNode) int {
	var count func(sym *DocumentSymbol) int
	count = func(sym *DocumentSymbol) int {
		n := 1
		for i := range sym.Children {
			n += count(&sym.Children[i])
		}
		return n
	}

	total := 0
	for _, node := range nodes {
		switch n := node.(type) {
		case *DocumentSymbol:
			if n != nil {
				total += count(n)
			}
		case *SymbolInformation:
			if n != nil && n.Location != nil {
				total++
			}
		}
	}
	return total
}
