package lens_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typelens/internal/config"
	lenserrors "typelens/internal/errors"
	"typelens/internal/lens"
	"typelens/internal/lens/lenstest"
)

const (
	docURI   = "file:///repo/src/app.ts"
	otherURI = "file:///repo/src/other.ts"
)

// appText places foo on line 5, matching the range used by the scenarios.
const appText = "// header\n\n\n\n\nfunction foo() {}\n"

func setup(t *testing.T) (*lenstest.Host, *lens.Provider, *lens.Document) {
	t.Helper()
	host := lenstest.NewHost()
	host.Outline.Set(docURI, &lens.DocumentSymbol{
		Name:  "foo",
		Kind:  lens.KindFunction,
		Range: lens.NewRange(5, 0, 5, 17),
	})
	host.Workspace.SetActive(docURI)
	return host, lens.NewProvider(host.Options()), lens.NewDocument(docURI, "typescript", 1, appText)
}

func provideOne(t *testing.T, p *lens.Provider, doc *lens.Document) lens.Annotation {
	t.Helper()
	anns, err := p.ProvideAnnotations(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, anns, 1)
	return anns[0]
}

var fooAnchor = lens.NewRange(5, 9, 5, 12)

func TestScenarioA_UnusedInActiveDocument(t *testing.T) {
	host, p, doc := setup(t)
	ann := provideOne(t, p, doc)
	assert.Equal(t, fooAnchor, ann.Range())

	label, err := p.ResolveAnnotation(context.Background(), ann)
	require.NoError(t, err)
	assert.Equal(t, "no references", label.Text)
	assert.Empty(t, label.Locations)
	assert.NotEqual(t, lens.ActionShowReferences, label.Action)

	st, ok := p.Tracker().State(docURI)
	require.True(t, ok)
	assert.Equal(t, []lens.Range{fooAnchor}, st.Ranges)

	live := host.Highlighter.Live()
	require.Len(t, live, 1)
	assert.Equal(t, []lens.Range{fooAnchor}, live[st.Style])
}

func TestScenarioB_ThreeReferences(t *testing.T) {
	host, p, doc := setup(t)
	refs := []lens.Location{
		{URI: otherURI, Range: lens.NewRange(1, 0, 1, 3)},
		{URI: otherURI, Range: lens.NewRange(7, 4, 7, 7)},
		{URI: docURI, Range: lens.NewRange(9, 0, 9, 3)},
	}
	host.References.Set(docURI, fooAnchor.Start, refs...)

	label, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	assert.Equal(t, "3 references", label.Text)
	assert.Equal(t, lens.ActionShowReferences, label.Action)
	assert.Equal(t, refs, label.Locations)

	st, _ := p.Tracker().State(docURI)
	assert.Empty(t, st.Ranges)
}

func TestScenarioC_SelfReferenceOnly(t *testing.T) {
	host, p, doc := setup(t)
	host.Workspace.SetActive(otherURI)
	host.References.Set(docURI, fooAnchor.Start, lens.Location{URI: docURI, Range: fooAnchor})

	label, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	assert.Equal(t, lens.ActionFindReferences, label.Action)
	assert.Equal(t, "no references", label.Text)
}

func TestScenarioD_AllBlackboxed(t *testing.T) {
	host, p, doc := setup(t)
	host.Settings.Update(func(s *config.Settings) {
		s.Blackbox = []string{"**/generated/**"}
	})
	host.References.Set(docURI, fooAnchor.Start,
		lens.Location{URI: "file:///repo/generated/a.ts", Range: lens.NewRange(0, 0, 0, 3)},
		lens.Location{URI: "file:///repo/generated/b.ts", Range: lens.NewRange(2, 0, 2, 3)},
	)

	label, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	assert.Equal(t, lens.ActionBlackboxed, label.Action)
	assert.Equal(t, "<< called from blackbox >>", label.Text)

	st, _ := p.Tracker().State(docURI)
	assert.Empty(t, st.Ranges)
}

func TestScenarioE_IgnoreList(t *testing.T) {
	host, p, doc := setup(t)
	host.Outline.Set(docURI, &lens.DocumentSymbol{
		Name:  "ngOnInit",
		Kind:  lens.KindMethod,
		Range: lens.NewRange(5, 0, 5, 17),
	})

	anns, err := p.ProvideAnnotations(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestScenarioF_DisableUnusedDecoration(t *testing.T) {
	host, p, doc := setup(t)

	_, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	require.Len(t, host.Highlighter.Live(), 1)

	host.Settings.Update(func(s *config.Settings) { s.DecorateUnused = false })
	p.SettingsChanged()

	_, ok := p.Tracker().State(docURI)
	assert.False(t, ok)
	assert.Empty(t, host.Highlighter.Live())

	// A later pass finds the same unused symbol but renders nothing.
	before := len(host.Highlighter.Snapshot())
	label, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	assert.Equal(t, lens.ActionFindReferences, label.Action)
	assert.Len(t, host.Highlighter.Snapshot(), before)
	assert.Empty(t, host.Highlighter.Live())
}

func TestProvider_NewPassReplacesRanges(t *testing.T) {
	host, p, doc := setup(t)

	first := provideOne(t, p, doc)
	_, err := p.ResolveAnnotation(context.Background(), first)
	require.NoError(t, err)
	st1, _ := p.Tracker().State(docURI)

	second := provideOne(t, p, doc)
	st2, ok := p.Tracker().State(docURI)
	require.True(t, ok)
	assert.Empty(t, st2.Ranges)
	assert.NotEqual(t, st1.Style, st2.Style)

	// The old style was disposed before the new pass started.
	events := host.Highlighter.Snapshot()
	assert.Equal(t, "dispose", events[len(events)-1].Op)
	assert.Equal(t, st1.Style, events[len(events)-1].Style)

	// Results of the superseded pass are dropped.
	_, err = p.ResolveAnnotation(context.Background(), first)
	assert.True(t, lenserrors.HasCode(err, lenserrors.Cancelled))
	st, _ := p.Tracker().State(docURI)
	assert.Empty(t, st.Ranges)

	_, err = p.ResolveAnnotation(context.Background(), second)
	require.NoError(t, err)
	_, err = p.ResolveAnnotation(context.Background(), second)
	require.NoError(t, err)
	st, _ = p.Tracker().State(docURI)
	assert.Equal(t, []lens.Range{fooAnchor}, st.Ranges)
}

func TestProvider_CancelledResolveDoesNotMutate(t *testing.T) {
	host, p, doc := setup(t)
	host.References.Block = make(chan struct{})

	ann := provideOne(t, p, doc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	label, err := p.ResolveAnnotation(ctx, ann)
	assert.Nil(t, label)
	assert.True(t, lenserrors.HasCode(err, lenserrors.Cancelled))

	st, _ := p.Tracker().State(docURI)
	assert.Empty(t, st.Ranges)
}

func TestProvider_HostFailures(t *testing.T) {
	host, p, doc := setup(t)

	host.Outline.Err = errors.New("server crashed")
	anns, err := p.ProvideAnnotations(context.Background(), doc)
	assert.Empty(t, anns)
	assert.True(t, lenserrors.HasCode(err, lenserrors.HostCallFailed))

	host.Outline.Err = nil
	ann := provideOne(t, p, doc)
	host.References.Err = errors.New("timeout")
	label, err := p.ResolveAnnotation(context.Background(), ann)
	assert.Nil(t, label)
	assert.True(t, lenserrors.HasCode(err, lenserrors.HostCallFailed))
}

func TestProvider_ToggleAndSkippedLanguages(t *testing.T) {
	host, p, doc := setup(t)

	assert.False(t, p.Toggle())
	anns, err := p.ProvideAnnotations(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, anns)
	assert.Equal(t, 0, host.Outline.Calls)

	// Decorations are still reinitialized while disabled.
	_, ok := p.Tracker().State(docURI)
	assert.True(t, ok)

	assert.True(t, p.Toggle())
	assert.True(t, p.Enabled())
	provideOne(t, p, doc)

	cs := lens.NewDocument("file:///repo/Program.cs", "csharp", 1, "class P {}")
	anns, err = p.ProvideAnnotations(context.Background(), cs)
	require.NoError(t, err)
	assert.Empty(t, anns)
}

func TestProvider_ActivationRendersBackgroundDocument(t *testing.T) {
	host, p, doc := setup(t)
	host.Workspace.SetActive(otherURI)

	// Not active while evaluated: nothing recorded.
	_, err := p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)
	st, _ := p.Tracker().State(docURI)
	assert.Empty(t, st.Ranges)

	// Re-evaluate while active, then switch away and back.
	host.Workspace.SetActive(docURI)
	_, err = p.ResolveAnnotation(context.Background(), provideOne(t, p, doc))
	require.NoError(t, err)

	host.Workspace.SetActive(otherURI)
	p.DocumentActivated(otherURI)
	host.Workspace.SetActive(docURI)
	p.DocumentActivated(docURI)

	st, _ = p.Tracker().State(docURI)
	live := host.Highlighter.Live()
	require.Len(t, live, 1)
	assert.Equal(t, []lens.Range{fooAnchor}, live[st.Style])
}

func TestProvider_DocumentClosed(t *testing.T) {
	host, p, doc := setup(t)
	ann := provideOne(t, p, doc)

	p.DocumentClosed(docURI)
	_, ok := p.Tracker().State(docURI)
	assert.False(t, ok)
	assert.Empty(t, host.Highlighter.Live())

	_, err := p.ResolveAnnotation(context.Background(), ann)
	assert.True(t, lenserrors.HasCode(err, lenserrors.Cancelled))
}

// gatedSettings blocks the call numbered gate until release is closed.
type gatedSettings struct {
	lens.SettingsSource

	mu      sync.Mutex
	calls   int
	gate    int
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSettings) Settings() config.Settings {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if n == g.gate {
		close(g.entered)
		<-g.release
	}
	return g.SettingsSource.Settings()
}

func TestProvider_OverlappingPassesKeepNewestUnusedSet(t *testing.T) {
	host, _, doc := setup(t)
	// Call 1 is read by ProvideAnnotations, call 2 by Tracker.Begin.
	gated := &gatedSettings{
		SettingsSource: host.Settings,
		gate:           2,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	opts := host.Options()
	opts.Settings = gated
	p := lens.NewProvider(opts)

	firstErr := make(chan error, 1)
	go func() {
		_, err := p.ProvideAnnotations(context.Background(), doc)
		firstErr <- err
	}()
	<-gated.entered

	ann := provideOne(t, p, doc)

	close(gated.release)
	err := <-firstErr
	assert.True(t, lenserrors.HasCode(err, lenserrors.Cancelled))

	label, err := p.ResolveAnnotation(context.Background(), ann)
	require.NoError(t, err)
	assert.Equal(t, "no references", label.Text)

	st, ok := p.Tracker().State(docURI)
	require.True(t, ok)
	assert.Equal(t, ann.Pass, st.Pass)
	assert.Equal(t, []lens.Range{fooAnchor}, st.Ranges)
}
