package scip

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	lenserrors "typelens/internal/errors"
)

// Index is a decoded SCIP index with lookups by path, symbol and mention.
type Index struct {
	Metadata  *Metadata
	Documents []*Document
	Symbols   map[string]*SymbolInformation

	LoadedAt time.Time

	// IndexedCommit is the commit the indexer was run on, when it says so.
	IndexedCommit string

	byPath   map[string]*Document
	mentions map[string][]mention
	count    int
}

// mention is an occurrence together with the document it sits in.
type mention struct {
	doc *Document
	occ *Occurrence
}

// LoadIndex reads the index at path. Paths ending in .gz or .zst are
// decompressed first.
func LoadIndex(path string) (*Index, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, lenserrors.NewLensError(
			lenserrors.IndexMissing,
			fmt.Sprintf("no SCIP index at %s", path),
			err,
			lenserrors.GetSuggestedFixes(lenserrors.IndexMissing),
		)
	}

	data, err := readIndexFile(path)
	if err != nil {
		return nil, lenserrors.Wrap(lenserrors.InternalError, err, "read SCIP index %s", path)
	}

	var pb scippb.Index
	if err := proto.Unmarshal(data, &pb); err != nil {
		return nil, lenserrors.NewLensError(
			lenserrors.IndexMissing,
			fmt.Sprintf("%s is not a SCIP index", path),
			err,
			[]lenserrors.FixAction{{
				Type:        lenserrors.RunCommand,
				Command:     "scip print --index=" + path,
				Description: "Inspect the index file",
			}},
		)
	}
	return NewIndex(&pb), nil
}

func readIndexFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(zr)
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(data, nil)
	default:
		return data, nil
	}
}

// NewIndex builds the lookup tables for a decoded index.
func NewIndex(pb *scippb.Index) *Index {
	idx := &Index{
		Metadata:  fromMetadata(pb.Metadata),
		Documents: make([]*Document, 0, len(pb.Documents)),
		Symbols:   make(map[string]*SymbolInformation),
		LoadedAt:  time.Now(),
		byPath:    make(map[string]*Document),
		mentions:  make(map[string][]mention),
	}

	for _, d := range pb.Documents {
		doc := fromDocument(d)
		idx.Documents = append(idx.Documents, doc)
		idx.byPath[doc.RelativePath] = doc

		for _, sym := range doc.Symbols {
			idx.Symbols[sym.Symbol] = sym
		}
		for _, occ := range doc.Occurrences {
			if occ.Symbol == "" {
				continue
			}
			key := mentionKey(doc, occ.Symbol)
			idx.mentions[key] = append(idx.mentions[key], mention{doc: doc, occ: occ})
			idx.count++
		}
	}

	if idx.Metadata != nil && idx.Metadata.Tool != nil {
		idx.IndexedCommit = indexedCommit(idx.Metadata.Tool)
	}
	return idx
}

// mentionKey scopes local symbols to their document; global symbols are
// unique across the index.
func mentionKey(doc *Document, symbol string) string {
	if IsLocalSymbol(symbol) {
		return doc.RelativePath + "\x00" + symbol
	}
	return symbol
}

// Document returns the document at a slash-separated relative path.
func (i *Index) Document(relativePath string) *Document {
	return i.byPath[relativePath]
}

// Symbol returns what the index knows about a symbol.
func (i *Index) Symbol(symbol string) *SymbolInformation {
	return i.Symbols[symbol]
}

// mentionsOf returns every occurrence of symbol, as seen from doc.
func (i *Index) mentionsOf(doc *Document, symbol string) []mention {
	return i.mentions[mentionKey(doc, symbol)]
}

// OccurrenceCount is the number of symbol occurrences in the index.
func (i *Index) OccurrenceCount() int {
	return i.count
}

// ProjectRoot is the indexed project root as a path, or "".
func (i *Index) ProjectRoot() string {
	if i.Metadata == nil {
		return ""
	}
	return strings.TrimPrefix(i.Metadata.ProjectRoot, "file://")
}

func fromMetadata(meta *scippb.Metadata) *Metadata {
	if meta == nil {
		return nil
	}
	out := &Metadata{
		Version:     strconv.Itoa(int(meta.Version)),
		ProjectRoot: meta.ProjectRoot,
		Encoding:    meta.TextDocumentEncoding.String(),
	}
	if t := meta.ToolInfo; t != nil {
		out.Tool = &ToolInfo{Name: t.Name, Version: t.Version, Arguments: t.Arguments}
	}
	return out
}

func fromDocument(d *scippb.Document) *Document {
	doc := &Document{
		RelativePath: filepath.ToSlash(d.RelativePath),
		Language:     d.Language,
		Occurrences:  make([]*Occurrence, len(d.Occurrences)),
		Symbols:      make([]*SymbolInformation, len(d.Symbols)),
	}
	for i, o := range d.Occurrences {
		doc.Occurrences[i] = &Occurrence{
			Range:          o.Range,
			Symbol:         o.Symbol,
			SymbolRoles:    o.SymbolRoles,
			EnclosingRange: o.EnclosingRange,
		}
	}
	for i, s := range d.Symbols {
		info := &SymbolInformation{
			Symbol:          s.Symbol,
			DisplayName:     s.DisplayName,
			EnclosingSymbol: s.EnclosingSymbol,
		}
		if s.Kind != 0 {
			info.Kind = s.Kind.String()
		}
		doc.Symbols[i] = info
	}
	return doc
}

// commitFlags are indexer flags that carry the indexed commit.
var commitFlags = []string{"--commit=", "--git-commit=", "--module-version="}

// indexedCommit digs the indexed commit out of the indexer invocation.
func indexedCommit(tool *ToolInfo) string {
	for i, arg := range tool.Arguments {
		for _, flag := range commitFlags {
			if v, ok := strings.CutPrefix(arg, flag); ok && v != "" {
				return v
			}
		}
		if arg == "-c" && i+1 < len(tool.Arguments) {
			return tool.Arguments[i+1]
		}
	}
	// scip-go reports the commit as its version
	if isHexCommit(tool.Version) {
		return tool.Version
	}
	return ""
}

func isHexCommit(s string) bool {
	if len(s) < 7 || len(s) > 40 {
		return false
	}
	for _, c := range strings.ToLower(s) {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ResolveIndexPath makes a configured index path absolute under repoRoot.
func ResolveIndexPath(repoRoot, configured string) string {
	if filepath.IsAbs(configured) {
		return configured
	}
	return filepath.Join(repoRoot, configured)
}
