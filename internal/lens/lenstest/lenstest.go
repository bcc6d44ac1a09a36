// Package lenstest provides in-memory hosts for exercising the lens
// provider in tests.
package lenstest

import (
	"context"
	"fmt"
	"sync"

	"typelens/internal/config"
	"typelens/internal/lens"
)

// Outline serves fixed outlines per URI.
type Outline struct {
	mu    sync.Mutex
	Nodes map[string][]lens.OutlineNode
	Err   error
	Calls int
}

// NewOutline creates an empty outline host.
func NewOutline() *Outline {
	return &Outline{Nodes: make(map[string][]lens.OutlineNode)}
}

// Set replaces the outline of uri.
func (o *Outline) Set(uri string, nodes ...lens.OutlineNode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Nodes[uri] = nodes
}

func (o *Outline) Outline(ctx context.Context, uri string) ([]lens.OutlineNode, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Err != nil {
		return nil, o.Err
	}
	return o.Nodes[uri], nil
}

// References serves fixed reference lists keyed by URI and position.
// Block, when set, is waited on before answering.
type References struct {
	mu    sync.Mutex
	Locs  map[string][]lens.Location
	Err   error
	Block chan struct{}
}

// NewReferences creates an empty reference host.
func NewReferences() *References {
	return &References{Locs: make(map[string][]lens.Location)}
}

func refKey(uri string, pos lens.Position) string {
	return fmt.Sprintf("%s@%s", uri, pos)
}

// Set registers the references of the symbol at pos in uri.
func (r *References) Set(uri string, pos lens.Position, locs ...lens.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Locs[refKey(uri, pos)] = locs
}

func (r *References) References(ctx context.Context, uri string, pos lens.Position) ([]lens.Location, error) {
	r.mu.Lock()
	block := r.Block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	return r.Locs[refKey(uri, pos)], nil
}

// HighlightEvent is one call recorded by Highlighter.
type HighlightEvent struct {
	Op     string // "apply" or "dispose"
	URI    string
	Style  lens.StyleHandle
	Color  string
	Ranges []lens.Range
}

// Highlighter records every apply and dispose call.
type Highlighter struct {
	mu     sync.Mutex
	Events []HighlightEvent
}

func (h *Highlighter) Apply(uri string, style lens.StyleHandle, color string, ranges []lens.Range) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, HighlightEvent{Op: "apply", URI: uri, Style: style, Color: color, Ranges: ranges})
}

func (h *Highlighter) Dispose(style lens.StyleHandle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, HighlightEvent{Op: "dispose", Style: style})
}

// Snapshot returns a copy of the recorded events.
func (h *Highlighter) Snapshot() []HighlightEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HighlightEvent(nil), h.Events...)
}

// Live returns the styles applied and not yet disposed, with the ranges
// last applied to each.
func (h *Highlighter) Live() map[lens.StyleHandle][]lens.Range {
	live := make(map[lens.StyleHandle][]lens.Range)
	for _, e := range h.Snapshot() {
		switch e.Op {
		case "apply":
			live[e.Style] = e.Ranges
		case "dispose":
			delete(live, e.Style)
		}
	}
	return live
}

// Workspace holds the active document.
type Workspace struct {
	mu     sync.Mutex
	active string
}

// SetActive makes uri the active document.
func (w *Workspace) SetActive(uri string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = uri
}

func (w *Workspace) ActiveDocument() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// Settings is a mutable settings source.
type Settings struct {
	mu sync.Mutex
	s  config.Settings
}

// NewSettings starts from the default settings.
func NewSettings() *Settings {
	return &Settings{s: config.DefaultSettings()}
}

// Update mutates the settings under the lock.
func (s *Settings) Update(fn func(*config.Settings)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.s)
}

func (s *Settings) Settings() config.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

// Host bundles the fakes.
type Host struct {
	Outline     *Outline
	References  *References
	Highlighter *Highlighter
	Workspace   *Workspace
	Settings    *Settings
}

// NewHost creates a host with default settings and no active document.
func NewHost() *Host {
	return &Host{
		Outline:     NewOutline(),
		References:  NewReferences(),
		Highlighter: &Highlighter{},
		Workspace:   &Workspace{},
		Settings:    NewSettings(),
	}
}

// Options returns provider options wired to the fakes.
func (h *Host) Options() lens.Options {
	return lens.Options{
		Outline:     h.Outline,
		References:  h.References,
		Highlighter: h.Highlighter,
		Workspace:   h.Workspace,
		Settings:    h.Settings,
	}
}
