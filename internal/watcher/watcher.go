// Package watcher reloads state when files in a directory change.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// EventType represents the type of file system event
type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
	EventRename
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a change to a watched file.
type Event struct {
	Type      EventType
	Path      string
	Timestamp time.Time
}

// MatchFunc reports whether a changed path is of interest.
type MatchFunc func(path string) bool

// MatchPath matches exactly one file.
func MatchPath(path string) MatchFunc {
	want := filepath.Clean(path)
	return func(p string) bool {
		return filepath.Clean(p) == want
	}
}

// MatchBaseGlob matches file base names against any of patterns,
// e.g. "config.{json,yaml,yml,toml}".
func MatchBaseGlob(patterns ...string) (MatchFunc, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid watch pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return func(path string) bool {
		base := filepath.Base(path)
		for _, g := range globs {
			if g.Match(base) {
				return true
			}
		}
		return false
	}, nil
}

// Watcher batches changes to matching files in one directory.
type Watcher struct {
	dir    string
	match  MatchFunc
	delay  time.Duration
	fw     *fsnotify.Watcher
	logger *slog.Logger
}

// New starts watching dir. The directory must exist. Call Run to consume
// events; Run closes the watcher.
func New(dir string, match MatchFunc, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}
	return &Watcher{
		dir:    dir,
		match:  match,
		delay:  delay,
		fw:     fw,
		logger: logger,
	}, nil
}

// Run delivers batches of matching events to onChange once the directory
// has been quiet for the watcher's delay, one event per path. It blocks
// until ctx is done.
func (w *Watcher) Run(ctx context.Context, onChange func([]Event)) error {
	batch := newCoalescer(w.delay, onChange)
	defer w.fw.Close()
	defer batch.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			event, ok := convert(ev)
			if !ok || (w.match != nil && !w.match(ev.Name)) {
				continue
			}
			w.logger.Debug("Watched file changed",
				"path", event.Path,
				"op", event.Type.String(),
			)
			batch.add(event)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", "dir", w.dir, "error", err.Error())
		}
	}
}

func convert(ev fsnotify.Event) (Event, bool) {
	event := Event{Path: ev.Name, Timestamp: time.Now()}
	switch {
	case ev.Has(fsnotify.Create):
		event.Type = EventCreate
	case ev.Has(fsnotify.Write):
		event.Type = EventModify
	case ev.Has(fsnotify.Remove):
		event.Type = EventDelete
	case ev.Has(fsnotify.Rename):
		event.Type = EventRename
	default:
		return Event{}, false
	}
	return event, true
}
