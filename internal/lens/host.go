package lens

import (
	"context"

	"typelens/internal/config"
)

// OutlineProvider returns the symbol outline of a document.
type OutlineProvider interface {
	Outline(ctx context.Context, uri string) ([]OutlineNode, error)
}

// ReferenceProvider returns every reference to the symbol at pos.
type ReferenceProvider interface {
	References(ctx context.Context, uri string, pos Position) ([]Location, error)
}

// Highlighter renders and releases unused-symbol highlight styles.
type Highlighter interface {
	Apply(uri string, style StyleHandle, color string, ranges []Range)
	Dispose(style StyleHandle)
}

// Workspace reports which document the user is looking at. An empty string
// means no document is active.
type Workspace interface {
	ActiveDocument() string
}

// SettingsSource returns the current lens settings.
type SettingsSource interface {
	Settings() config.Settings
}

// Observer receives evaluation events. Implementations must be safe for
// concurrent use.
type Observer interface {
	PassStarted(languageID string)
	AnnotationsProvided(languageID string, n int)
	Resolved(action ActionKind)
	HostCallFailed(op string)
	PassCancelled()
	TrackedDocuments(n int)
}

type nopObserver struct{}

func (nopObserver) PassStarted(string)              {}
func (nopObserver) AnnotationsProvided(string, int) {}
func (nopObserver) Resolved(ActionKind)             {}
func (nopObserver) HostCallFailed(string)           {}
func (nopObserver) PassCancelled()                  {}
func (nopObserver) TrackedDocuments(int)            {}
