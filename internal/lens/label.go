package lens

import (
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"typelens/internal/config"
)

// placeholder is substituted in label templates.
const placeholder = "{0}"

// DecisionEnv is the state a decision depends on besides the references.
type DecisionEnv struct {
	ActiveURI string
	Settings  config.Settings
}

// Decision is a resolved label plus whether the anchor belongs in the
// unused set.
type Decision struct {
	LabelResult
	// Amount is the reference count after every filter.
	Amount int
	// MarkUnused is set when the anchor has no references at all and its
	// document is active with unused decoration on.
	MarkUnused bool
}

// Decider turns raw reference lists into labels and actions.
type Decider struct {
	logger *slog.Logger

	mu       sync.Mutex
	blackbox *Blackbox
}

// NewDecider creates a decider. Invalid blackbox patterns are reported
// through logger.
func NewDecider(logger *slog.Logger) *Decider {
	return &Decider{logger: logger}
}

// compiled returns the blackbox for patterns, recompiling only when the
// patterns changed.
func (d *Decider) compiled(patterns []string) *Blackbox {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.blackbox == nil || !slices.Equal(d.blackbox.patterns, patterns) {
		d.blackbox = CompileBlackbox(slices.Clone(patterns), d.logger)
	}
	return d.blackbox
}

// Decide filters refs for c and picks the label text and action.
func (d *Decider) Decide(c Candidate, refs []Location, env DecisionEnv) Decision {
	s := env.Settings

	filtered := refs
	if s.ExcludeSelf {
		filtered = make([]Location, 0, len(refs))
		for _, loc := range refs {
			if loc.URI == c.URI && c.Anchor.Contains(loc.Range) {
				continue
			}
			filtered = append(filtered, loc)
		}
	}

	visible := filtered
	if bb := d.compiled(s.Blackbox); bb.Len() > 0 {
		visible = make([]Location, 0, len(filtered))
		for _, loc := range filtered {
			if !bb.Match(loc.URI) {
				visible = append(visible, loc)
			}
		}
	}

	amount := len(visible)
	var text string
	switch amount {
	case 0:
		text = fillTemplate(s.NoReferences, c.Name)
	case 1:
		text = fillTemplate(s.Singular, strconv.Itoa(amount))
	default:
		text = fillTemplate(s.Plural, strconv.Itoa(amount))
	}

	dec := Decision{
		LabelResult: LabelResult{
			Range: NewRange(c.Anchor.Start.Line, c.Anchor.Start.Character, c.Anchor.Start.Line, lineEndCharacter),
			Text:  text,
		},
		Amount: amount,
	}

	switch {
	case amount > 0:
		dec.Action = ActionShowReferences
		dec.Locations = visible
	case len(filtered) > 0:
		dec.Action = ActionBlackboxed
		dec.Text = s.BlackboxTitle
	default:
		dec.Action = ActionFindReferences
		dec.MarkUnused = s.DecorateUnused && c.URI == env.ActiveURI
	}
	return dec
}

// fillTemplate replaces the first placeholder in tmpl with value.
func fillTemplate(tmpl, value string) string {
	return strings.Replace(tmpl, placeholder, value, 1)
}
