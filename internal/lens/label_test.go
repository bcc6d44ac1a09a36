package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"typelens/internal/config"
	lenserrors "typelens/internal/errors"
)

const fooURI = "file:///repo/src/foo.ts"

func fooCandidate() Candidate {
	return Candidate{
		URI:         fooURI,
		Name:        "foo",
		Kind:        KindFunction,
		Declaration: NewRange(5, 0, 5, 10),
		Anchor:      NewRange(5, 0, 5, 10),
	}
}

func ref(uri string, line int) Location {
	return Location{URI: uri, Range: NewRange(line, 2, line, 5)}
}

func TestDecider_ZeroReferencesActiveDocument(t *testing.T) {
	d := NewDecider(nil)
	dec := d.Decide(fooCandidate(), nil, DecisionEnv{ActiveURI: fooURI, Settings: config.DefaultSettings()})

	assert.Equal(t, "no references", dec.Text)
	assert.True(t, dec.MarkUnused)
	assert.Empty(t, dec.Locations)
	assert.Equal(t, 0, dec.Amount)
	assert.Equal(t, NewRange(5, 0, 5, 90000), dec.Range)
}

func TestDecider_ZeroReferencesInactiveOrDisabled(t *testing.T) {
	d := NewDecider(nil)

	dec := d.Decide(fooCandidate(), nil, DecisionEnv{ActiveURI: "file:///other.ts", Settings: config.DefaultSettings()})
	assert.Equal(t, ActionFindReferences, dec.Action)
	assert.False(t, dec.MarkUnused)

	s := config.DefaultSettings()
	s.DecorateUnused = false
	dec = d.Decide(fooCandidate(), nil, DecisionEnv{ActiveURI: fooURI, Settings: s})
	assert.Equal(t, ActionFindReferences, dec.Action)
	assert.False(t, dec.MarkUnused)
}

func TestDecider_ShowReferences(t *testing.T) {
	d := NewDecider(nil)
	refs := []Location{ref("file:///repo/a.ts", 1), ref("file:///repo/b.ts", 2), ref(fooURI, 9)}

	dec := d.Decide(fooCandidate(), refs, DecisionEnv{ActiveURI: fooURI, Settings: config.DefaultSettings()})

	assert.Equal(t, "3 references", dec.Text)
	assert.Equal(t, ActionShowReferences, dec.Action)
	assert.Equal(t, "editor.action.showReferences", dec.Action.Command())
	assert.Equal(t, refs, dec.Locations)
	assert.False(t, dec.MarkUnused)

	dec = d.Decide(fooCandidate(), refs[:1], DecisionEnv{Settings: config.DefaultSettings()})
	assert.Equal(t, "1 reference", dec.Text)
}

func TestDecider_SelfReferenceExcluded(t *testing.T) {
	d := NewDecider(nil)
	self := Location{URI: fooURI, Range: NewRange(5, 0, 5, 3)}

	dec := d.Decide(fooCandidate(), []Location{self}, DecisionEnv{ActiveURI: "", Settings: config.DefaultSettings()})
	assert.Equal(t, 0, dec.Amount)
	assert.Equal(t, ActionFindReferences, dec.Action)
	assert.Equal(t, "no references", dec.Text)

	// Same range in another document is a real reference.
	other := Location{URI: "file:///repo/src/bar.ts", Range: self.Range}
	dec = d.Decide(fooCandidate(), []Location{self, other}, DecisionEnv{Settings: config.DefaultSettings()})
	assert.Equal(t, 1, dec.Amount)
	assert.Equal(t, []Location{other}, dec.Locations)

	s := config.DefaultSettings()
	s.ExcludeSelf = false
	dec = d.Decide(fooCandidate(), []Location{self}, DecisionEnv{Settings: s})
	assert.Equal(t, 1, dec.Amount)
	assert.Equal(t, ActionShowReferences, dec.Action)
}

func TestDecider_Blackboxed(t *testing.T) {
	d := NewDecider(nil)
	s := config.DefaultSettings()
	s.Blackbox = []string{"**/generated/**"}
	refs := []Location{
		ref("file:///repo/generated/api.ts", 1),
		ref("file:///repo/generated/deep/models.ts", 4),
	}

	dec := d.Decide(fooCandidate(), refs, DecisionEnv{ActiveURI: fooURI, Settings: s})
	assert.Equal(t, ActionBlackboxed, dec.Action)
	assert.Equal(t, "<< called from blackbox >>", dec.Text)
	assert.Empty(t, dec.Locations)
	assert.False(t, dec.MarkUnused)
	assert.Equal(t, "", dec.Action.Command())

	refs = append(refs, ref("file:///repo/src/use.ts", 3))
	dec = d.Decide(fooCandidate(), refs, DecisionEnv{ActiveURI: fooURI, Settings: s})
	assert.Equal(t, ActionShowReferences, dec.Action)
	assert.Equal(t, "1 reference", dec.Text)
	require.Len(t, dec.Locations, 1)
	assert.Equal(t, "file:///repo/src/use.ts", dec.Locations[0].URI)
}

func TestDecider_Templates(t *testing.T) {
	d := NewDecider(nil)
	s := config.DefaultSettings()
	s.NoReferences = "{0} is never used ({0})"
	s.Plural = "used {0}x"

	dec := d.Decide(fooCandidate(), nil, DecisionEnv{Settings: s})
	assert.Equal(t, "foo is never used ({0})", dec.Text)

	dec = d.Decide(fooCandidate(), []Location{ref("file:///x.ts", 1), ref("file:///y.ts", 1)}, DecisionEnv{Settings: s})
	assert.Equal(t, "used 2x", dec.Text)
}

func TestDecider_RecompilesOnPatternChange(t *testing.T) {
	d := NewDecider(nil)
	s := config.DefaultSettings()
	refs := []Location{ref("file:///repo/vendor/lib.ts", 1)}

	s.Blackbox = []string{"**/vendor/**"}
	assert.Equal(t, ActionBlackboxed, d.Decide(fooCandidate(), refs, DecisionEnv{Settings: s}).Action)

	s.Blackbox = []string{"**/generated/**"}
	assert.Equal(t, ActionShowReferences, d.Decide(fooCandidate(), refs, DecisionEnv{Settings: s}).Action)
}

func TestBlackbox_Match(t *testing.T) {
	bb := CompileBlackbox([]string{"**/generated/**", "[", "/abs/*.ts"}, nil)
	assert.Equal(t, 2, bb.Len())
	require.Len(t, bb.Invalid(), 1)
	assert.Equal(t, lenserrors.InvalidPattern, bb.Invalid()[0].Code)
	assert.Equal(t, map[string]string{"pattern": "["}, bb.Invalid()[0].Details)

	tests := map[string]bool{
		"file:///repo/generated/a.ts":  true,
		"/repo/generated/x/y.ts":       true,
		"file:///abs/one.ts":           true,
		"file:///abs/nested/one.ts":    false,
		"file:///repo/src/generated.ts": false,
	}
	for uri, want := range tests {
		assert.Equal(t, want, bb.Match(uri), uri)
	}

	assert.False(t, CompileBlackbox(nil, nil).Match("file:///anything"))
}
