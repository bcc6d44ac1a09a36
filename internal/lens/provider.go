package lens

import (
	"context"
	"log/slog"
	"sync"

	lenserrors "typelens/internal/errors"
)

// Annotation is a candidate handed to the host before its label is known.
type Annotation struct {
	Candidate
}

// Range is where the annotation is shown.
func (a Annotation) Range() Range {
	return a.Anchor
}

// Options wires a Provider to its host.
type Options struct {
	Outline     OutlineProvider
	References  ReferenceProvider
	Highlighter Highlighter
	Workspace   Workspace
	Settings    SettingsSource
	Logger      *slog.Logger
	Observer    Observer
}

// Provider implements the two-phase annotation protocol: ProvideAnnotations
// lists the anchors of a document, ResolveAnnotation labels one of them.
type Provider struct {
	outline  OutlineProvider
	refs     ReferenceProvider
	ws       Workspace
	settings SettingsSource
	logger   *slog.Logger
	observer Observer

	tracker *Tracker
	decider *Decider

	mu       sync.Mutex
	enabled  bool
	lastPass uint64
	current  map[string]uint64
}

// NewProvider creates an enabled provider.
func NewProvider(opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	return &Provider{
		outline:  opts.Outline,
		refs:     opts.References,
		ws:       opts.Workspace,
		settings: opts.Settings,
		logger:   logger,
		observer: observer,
		tracker:  NewTracker(opts.Highlighter, opts.Workspace, opts.Settings, observer),
		decider:  NewDecider(logger),
		enabled:  true,
		current:  make(map[string]uint64),
	}
}

// Tracker exposes the unused-decoration tracker.
func (p *Provider) Tracker() *Tracker {
	return p.tracker
}

// Enabled reports whether annotations are produced.
func (p *Provider) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Toggle flips whether annotations are produced and returns the new state.
func (p *Provider) Toggle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = !p.enabled
	return p.enabled
}

// beginPass allocates a pass for uri, superseding any pass in flight.
func (p *Provider) beginPass(uri string) (uint64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPass++
	p.current[uri] = p.lastPass
	return p.lastPass, p.enabled
}

// isCurrent reports whether pass is still the latest pass of uri.
func (p *Provider) isCurrent(uri string, pass uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current[uri] == pass
}

// ProvideAnnotations runs one evaluation pass over doc. It returns no
// annotations when the provider is disabled or the language is skipped.
func (p *Provider) ProvideAnnotations(ctx context.Context, doc *Document) ([]Annotation, error) {
	settings := p.settings.Settings()

	pass, enabled := p.beginPass(doc.URI)
	p.tracker.Begin(doc.URI, pass)

	filter := NewFilter(NewEligibilityConfig(settings))
	if !enabled || filter.SkipsLanguage(doc.LanguageID) {
		return nil, nil
	}
	p.observer.PassStarted(doc.LanguageID)

	nodes, err := p.outline.Outline(ctx, doc.URI)
	if err != nil {
		if ctx.Err() != nil {
			p.observer.PassCancelled()
			return nil, lenserrors.NewLensError(lenserrors.Cancelled, "outline request cancelled", ctx.Err(), nil)
		}
		p.observer.HostCallFailed("outline")
		p.logger.Debug("outline failed", "uri", doc.URI, "error", err)
		return nil, lenserrors.Wrap(lenserrors.HostCallFailed, err, "outline %s", doc.URI)
	}
	if ctx.Err() != nil || !p.isCurrent(doc.URI, pass) {
		p.observer.PassCancelled()
		return nil, lenserrors.NewLensError(lenserrors.Cancelled, "evaluation pass superseded", ctx.Err(), nil)
	}

	candidates := Collect(doc, Flatten(nodes), filter, pass)
	annotations := make([]Annotation, len(candidates))
	for i, c := range candidates {
		annotations[i] = Annotation{Candidate: c}
	}

	p.observer.AnnotationsProvided(doc.LanguageID, len(annotations))
	p.logger.Debug("annotations provided",
		"uri", doc.URI,
		"pass", pass,
		"symbols", CountNodes(nodes),
		"annotations", len(annotations),
	)
	return annotations, nil
}

// ResolveAnnotation looks up the references of a and decides its label.
// Results of cancelled or superseded passes are dropped and leave the
// unused set untouched.
func (p *Provider) ResolveAnnotation(ctx context.Context, a Annotation) (*LabelResult, error) {
	if !p.isCurrent(a.URI, a.Pass) {
		p.observer.PassCancelled()
		return nil, lenserrors.NewLensError(lenserrors.Cancelled, "evaluation pass superseded", nil, nil)
	}

	refs, err := p.refs.References(ctx, a.URI, a.Anchor.Start)
	if err != nil {
		if ctx.Err() != nil {
			p.observer.PassCancelled()
			return nil, lenserrors.NewLensError(lenserrors.Cancelled, "reference request cancelled", ctx.Err(), nil)
		}
		p.observer.HostCallFailed("references")
		p.logger.Debug("references failed", "uri", a.URI, "symbol", a.Name, "error", err)
		return nil, lenserrors.Wrap(lenserrors.HostCallFailed, err, "references of %s", a.Name)
	}
	if ctx.Err() != nil || !p.isCurrent(a.URI, a.Pass) {
		p.observer.PassCancelled()
		return nil, lenserrors.NewLensError(lenserrors.Cancelled, "evaluation pass superseded", ctx.Err(), nil)
	}

	dec := p.decider.Decide(a.Candidate, refs, DecisionEnv{
		ActiveURI: p.ws.ActiveDocument(),
		Settings:  p.settings.Settings(),
	})
	if dec.MarkUnused {
		p.tracker.Add(a.URI, a.Pass, a.Anchor)
	}

	p.observer.Resolved(dec.Action)
	return &dec.LabelResult, nil
}

// DocumentActivated re-renders the unused highlight of uri without
// re-evaluating it.
func (p *Provider) DocumentActivated(uri string) {
	p.tracker.Activate(uri)
}

// DocumentClosed forgets uri.
func (p *Provider) DocumentClosed(uri string) {
	p.mu.Lock()
	delete(p.current, uri)
	p.mu.Unlock()

	p.tracker.Close(uri)
}

// SettingsChanged must be called after the settings source was
// invalidated.
func (p *Provider) SettingsChanged() {
	p.tracker.Invalidate()
}
