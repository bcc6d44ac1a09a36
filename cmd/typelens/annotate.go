package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"typelens/internal/backends"
	"typelens/internal/config"
	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
)

var (
	annotateFormat   string
	annotateLanguage string
	annotateBackend  string
	annotateIndex    string
)

// annotateConcurrency bounds parallel reference lookups for one file.
const annotateConcurrency = 8

var annotateCmd = &cobra.Command{
	Use:   "annotate <file>",
	Short: "Print the reference count annotations of a file",
	Long: `Evaluate one file the way an editor would: list its annotated
declarations, resolve each one to a reference count, and report which
declarations are unused.

Examples:
  typelens annotate src/widget.ts
  typelens annotate src/widget.ts --format json
  typelens annotate main.go --backend scip --index index.scip`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnotate,
}

func init() {
	annotateCmd.Flags().StringVar(&annotateFormat, "format", "human", "Output format (human, json, yaml)")
	annotateCmd.Flags().StringVar(&annotateLanguage, "language", "", "Language id (default from the file extension)")
	annotateCmd.Flags().StringVar(&annotateBackend, "backend", "", "Preferred backend: lsp or scip (default from config)")
	annotateCmd.Flags().StringVar(&annotateIndex, "index", "", "SCIP index path (default from config)")
	rootCmd.AddCommand(annotateCmd)
}

// AnnotateReport is the result of annotating one file.
type AnnotateReport struct {
	URI         string             `json:"uri" yaml:"uri"`
	Language    string             `json:"language" yaml:"language"`
	Annotations []AnnotationReport `json:"annotations" yaml:"annotations"`
	Unused      []lens.Range       `json:"unused" yaml:"unused"`
}

// AnnotationReport is one resolved annotation.
type AnnotationReport struct {
	Name       string        `json:"name" yaml:"name"`
	Kind       string        `json:"kind" yaml:"kind"`
	Anchor     lens.Position `json:"anchor" yaml:"anchor"`
	Label      string        `json:"label" yaml:"label"`
	Action     string        `json:"action" yaml:"action"`
	References int           `json:"references" yaml:"references"`
	Error      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// annotationHost answers outline and reference queries.
type annotationHost interface {
	lens.OutlineProvider
	lens.ReferenceProvider
}

// singleDocument serves one document to the language server host.
type singleDocument struct {
	doc *lens.Document
}

func (s singleDocument) Document(uri string) (*lens.Document, bool) {
	if uri != s.doc.URI {
		return nil, false
	}
	return s.doc, true
}

// activeDocument is a workspace whose active editor never changes.
type activeDocument string

func (a activeDocument) ActiveDocument() string { return string(a) }

// collectedHighlights keeps the last highlight applied per document.
type collectedHighlights struct {
	mu     sync.Mutex
	ranges map[string][]lens.Range
}

func (c *collectedHighlights) Apply(uri string, _ lens.StyleHandle, _ string, ranges []lens.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges[uri] = append([]lens.Range(nil), ranges...)
}

func (c *collectedHighlights) Dispose(lens.StyleHandle) {}

func runAnnotate(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(annotateFormat))
	switch format {
	case FormatHuman, FormatJSON, FormatYAML:
	default:
		return fmt.Errorf("unsupported format: %s", annotateFormat)
	}

	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg := loadConfig(root)
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	doc, err := readDocument(cfg, args[0], annotateLanguage)
	if err != nil {
		return err
	}

	hosts, err := openHosts(cfg, root, annotateBackend, annotateIndex, singleDocument{doc: doc}, logger)
	if err != nil {
		return err
	}
	defer hosts.Close()

	report, err := annotateDocument(cmd.Context(), doc, hosts.ladder, config.NewStaticStore(cfg), logger)
	if err != nil {
		return err
	}

	if format == FormatHuman {
		return writeAnnotateHuman(cmd.OutOrStdout(), report)
	}
	return writeStructured(cmd.OutOrStdout(), report, format)
}

// readDocument snapshots the file at path as an open document.
func readDocument(cfg *config.Config, path, languageID string) (*lens.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, lenserrors.Wrap(lenserrors.MissingData, err, "read %s", path)
	}
	if languageID == "" {
		languageID = cfg.LanguageForPath(abs)
	}
	return lens.NewDocument(backends.PathToURI(abs), languageID, 1, string(data)), nil
}

// annotateDocument runs one evaluation pass over doc with doc as the active
// document and resolves every annotation.
func annotateDocument(ctx context.Context, doc *lens.Document, host annotationHost, settings lens.SettingsSource, logger *slog.Logger) (*AnnotateReport, error) {
	highlights := &collectedHighlights{ranges: make(map[string][]lens.Range)}
	provider := lens.NewProvider(lens.Options{
		Outline:     host,
		References:  host,
		Highlighter: highlights,
		Workspace:   activeDocument(doc.URI),
		Settings:    settings,
		Logger:      logger,
	})

	annotations, err := provider.ProvideAnnotations(ctx, doc)
	if err != nil {
		return nil, err
	}

	results := make([]AnnotationReport, len(annotations))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(annotateConcurrency)
	for i, a := range annotations {
		g.Go(func() error {
			results[i] = AnnotationReport{
				Name:   a.Name,
				Kind:   a.Kind.String(),
				Anchor: a.Anchor.Start,
			}
			res, err := provider.ResolveAnnotation(gctx, a)
			if err != nil {
				if lenserrors.HasCode(err, lenserrors.Cancelled) {
					return err
				}
				results[i].Error = err.Error()
				return nil
			}
			results[i].Label = res.Text
			results[i].Action = res.Action.String()
			results[i].References = len(res.Locations)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Anchor.Before(results[j].Anchor)
	})

	report := &AnnotateReport{
		URI:         doc.URI,
		Language:    doc.LanguageID,
		Annotations: results,
		Unused:      []lens.Range{},
	}
	if st, ok := provider.Tracker().State(doc.URI); ok {
		report.Unused = append(report.Unused, st.Ranges...)
	}
	sort.Slice(report.Unused, func(i, j int) bool {
		return report.Unused[i].Start.Before(report.Unused[j].Start)
	})
	return report, nil
}

func writeAnnotateHuman(w io.Writer, r *AnnotateReport) error {
	fmt.Fprintf(w, "%s (%s)\n", r.URI, r.Language)
	if len(r.Annotations) == 0 {
		fmt.Fprintln(w, "  no annotations")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, a := range r.Annotations {
		label, action := a.Label, a.Action
		if a.Error != "" {
			label, action = "error: "+a.Error, "-"
		}
		fmt.Fprintf(tw, "  %d:%d\t%s\t%s\t%s\t%s\n",
			a.Anchor.Line+1, a.Anchor.Character+1, a.Kind, a.Name, label, action)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Unused) > 0 {
		parts := make([]string, len(r.Unused))
		for i, u := range r.Unused {
			parts[i] = fmt.Sprintf("%d:%d", u.Start.Line+1, u.Start.Character+1)
		}
		fmt.Fprintf(w, "unused: %s\n", strings.Join(parts, ", "))
	}
	return nil
}
