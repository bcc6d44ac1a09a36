package lens

import (
	"slices"
	"sync"

	"github.com/google/uuid"
)

// StyleHandle identifies one highlight style allocated on the host.
type StyleHandle struct {
	id uuid.UUID
}

func newStyleHandle() StyleHandle {
	return StyleHandle{id: uuid.New()}
}

// IsZero reports whether h was never allocated.
func (h StyleHandle) IsZero() bool {
	return h.id == uuid.Nil
}

func (h StyleHandle) String() string {
	return h.id.String()
}

// ParseStyleHandle parses the string form of a handle.
func ParseStyleHandle(s string) (StyleHandle, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return StyleHandle{}, err
	}
	return StyleHandle{id: id}, nil
}

// UnusedDecorationState is the unused-symbol highlight of one document.
type UnusedDecorationState struct {
	Style  StyleHandle
	Color  string
	Ranges []Range
	// Pass is the evaluation pass that owns Ranges.
	Pass uint64
	// Shown is set once the ranges were pushed to an active editor.
	Shown bool
}

// Tracker keeps the unused highlight of every evaluated document in sync
// with the host. A style handle is always disposed before its replacement
// is created.
type Tracker struct {
	hl       Highlighter
	ws       Workspace
	settings SettingsSource
	observer Observer

	mu   sync.Mutex
	docs map[string]*UnusedDecorationState
	// latest is the newest pass begun per document.
	latest map[string]uint64
}

// NewTracker creates a tracker rendering through hl.
func NewTracker(hl Highlighter, ws Workspace, settings SettingsSource, observer Observer) *Tracker {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Tracker{
		hl:       hl,
		ws:       ws,
		settings: settings,
		observer: observer,
		docs:     make(map[string]*UnusedDecorationState),
		latest:   make(map[string]uint64),
	}
}

// Begin starts pass for uri. Any previous state is released, and a fresh
// empty one is allocated when unused decoration is on. A pass older than
// one already begun for uri is ignored.
func (t *Tracker) Begin(uri string, pass uint64) {
	s := t.settings.Settings()

	t.mu.Lock()
	defer t.mu.Unlock()

	if pass < t.latest[uri] {
		return
	}
	t.latest[uri] = pass

	t.releaseLocked(uri)
	if s.DecorateUnused {
		t.docs[uri] = &UnusedDecorationState{
			Style: newStyleHandle(),
			Color: s.UnusedColor,
			Pass:  pass,
		}
	}
	t.observer.TrackedDocuments(len(t.docs))
}

// Add records r as unused for uri and re-renders. It reports false when
// the document is not tracked or pass is no longer its current pass.
func (t *Tracker) Add(uri string, pass uint64, r Range) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.docs[uri]
	if !ok || st.Pass != pass {
		return false
	}
	if !slices.Contains(st.Ranges, r) {
		st.Ranges = append(st.Ranges, r)
	}
	t.syncLocked(uri, st)
	return true
}

// Sync pushes the ranges of uri to the host when uri is active.
func (t *Tracker) Sync(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if st, ok := t.docs[uri]; ok {
		t.syncLocked(uri, st)
	}
}

func (t *Tracker) syncLocked(uri string, st *UnusedDecorationState) {
	if t.ws.ActiveDocument() != uri {
		return
	}
	t.hl.Apply(uri, st.Style, st.Color, slices.Clone(st.Ranges))
	st.Shown = true
}

// Activate is called when uri becomes the active document. The first
// activation after an evaluation swaps in a fresh style handle.
func (t *Tracker) Activate(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.docs[uri]
	if !ok {
		return
	}
	if !st.Shown {
		t.hl.Dispose(st.Style)
		st.Style = newStyleHandle()
	}
	t.syncLocked(uri, st)
}

// Invalidate reacts to a settings change. Every style is recreated with
// the current color, or everything is released when unused decoration was
// turned off.
func (t *Tracker) Invalidate() {
	s := t.settings.Settings()
	if !s.DecorateUnused {
		t.Disable()
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for uri, st := range t.docs {
		t.hl.Dispose(st.Style)
		st.Style = newStyleHandle()
		st.Color = s.UnusedColor
		st.Shown = false
		t.syncLocked(uri, st)
	}
}

// Disable releases every tracked document.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for uri := range t.docs {
		t.releaseLocked(uri)
	}
	t.observer.TrackedDocuments(0)
}

// Close releases uri.
func (t *Tracker) Close(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.releaseLocked(uri)
	t.observer.TrackedDocuments(len(t.docs))
}

func (t *Tracker) releaseLocked(uri string) {
	st, ok := t.docs[uri]
	if !ok {
		return
	}
	t.hl.Dispose(st.Style)
	delete(t.docs, uri)
}

// State returns a copy of the state of uri.
func (t *Tracker) State(uri string) (UnusedDecorationState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.docs[uri]
	if !ok {
		return UnusedDecorationState{}, false
	}
	cp := *st
	cp.Ranges = slices.Clone(st.Ranges)
	return cp, true
}

// Len returns the number of tracked documents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}
