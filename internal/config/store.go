package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	lenserrors "typelens/internal/errors"
	"typelens/internal/watcher"
)

// reloadDelay coalesces bursts of file events from editors doing atomic saves.
const reloadDelay = 100 * time.Millisecond

// Store holds the current configuration snapshot. The snapshot is rebuilt
// lazily on the first read after Invalidate, and every rebuild bumps the
// generation.
type Store struct {
	repoRoot string
	logger   *slog.Logger

	// base is the starting point of static stores.
	base *Config

	mu         sync.Mutex
	cfg        *Config
	overrides  map[string]interface{}
	stale      bool
	generation uint64
	validSince time.Time

	changes chan struct{}
}

// NewStore loads the configuration for repoRoot.
func NewStore(repoRoot string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cfg, err := LoadConfig(repoRoot)
	if err != nil {
		return nil, lenserrors.Wrap(lenserrors.ConfigInvalid, err, "load config from %s", repoRoot)
	}
	return &Store{
		repoRoot:   repoRoot,
		logger:     logger,
		cfg:        cfg,
		generation: 1,
		validSince: time.Now(),
		changes:    make(chan struct{}, 1),
	}, nil
}

// NewStaticStore wraps an already built configuration. It never reloads
// from disk, but Apply still layers client settings over it.
func NewStaticStore(cfg *Config) *Store {
	return &Store{
		logger:     slog.New(slog.DiscardHandler),
		base:       cfg,
		cfg:        cfg,
		generation: 1,
		validSince: time.Now(),
		changes:    make(chan struct{}, 1),
	}
}

// Config returns the current snapshot, rebuilding it if it was invalidated.
func (s *Store) Config() *Config {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stale {
		s.rebuildLocked()
	}
	return s.cfg
}

// Settings returns the lens settings of the current snapshot.
func (s *Store) Settings() Settings {
	return s.Config().TypeLens
}

// Generation identifies the snapshot; it changes on every rebuild.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale {
		s.rebuildLocked()
	}
	return s.generation
}

// ValidSince reports when the current snapshot was built.
func (s *Store) ValidSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validSince
}

// Changes delivers one signal per invalidation. Signals coalesce when the
// reader is slow.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// Invalidate marks the snapshot stale and notifies listeners.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Apply replaces the settings pushed by the client. Keys are lens setting
// names, optionally prefixed with "typelens.".
func (s *Store) Apply(overrides map[string]interface{}) {
	normalized := make(map[string]interface{}, len(overrides))
	for k, v := range overrides {
		normalized[strings.TrimPrefix(k, Namespace+".")] = v
	}

	s.mu.Lock()
	s.overrides = normalized
	s.mu.Unlock()

	s.Invalidate()
}

func (s *Store) rebuildLocked() {
	cfg, err := s.build()
	s.stale = false
	if err != nil {
		s.logger.Warn("keeping previous configuration",
			"error", err,
			"code", lenserrors.ConfigInvalid,
		)
		return
	}
	s.cfg = cfg
	s.generation++
	s.validSince = time.Now()
	s.logger.Debug("configuration rebuilt",
		"generation", s.generation,
		"code", lenserrors.ConfigDrift,
	)
}

// Status describes the current snapshot for health reports.
func (s *Store) Status() map[string]any {
	gen := s.Generation()
	return map[string]any{
		"generation": gen,
		"validSince": s.ValidSince().UTC().Format(time.RFC3339),
		"static":     s.repoRoot == "",
	}
}

func (s *Store) build() (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if s.repoRoot != "" {
		cfg, err = s.loadWithOverrides()
	} else {
		cfg, err = s.staticWithOverrides()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Store) loadWithOverrides() (*Config, error) {
	v, err := newViper(s.repoRoot)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}
	for k, val := range s.overrides {
		v.Set(Namespace+"."+k, val)
	}
	return decode(v)
}

func (s *Store) staticWithOverrides() (*Config, error) {
	v, err := newViper(s.base.RepoRoot)
	if err != nil {
		return nil, err
	}
	if err := setDefaults(v, s.base); err != nil {
		return nil, err
	}
	for k, val := range s.overrides {
		v.Set(Namespace+"."+k, val)
	}
	return decode(v)
}

// Watch reloads the configuration when a file under .typelens changes.
// It returns once the watch is established; watching stops with ctx.
func (s *Store) Watch(ctx context.Context) error {
	if s.repoRoot == "" {
		return fmt.Errorf("static configuration cannot be watched")
	}

	match, err := watcher.MatchBaseGlob("config.{json,yaml,yml,toml}")
	if err != nil {
		return lenserrors.Wrap(lenserrors.InternalError, err, "compile config watch pattern")
	}

	dir := filepath.Join(s.repoRoot, ConfigDir)
	w, err := watcher.New(dir, match, reloadDelay, s.logger)
	if err != nil {
		return lenserrors.Wrap(lenserrors.MissingData, err, "watch %s", dir)
	}

	go func() {
		_ = w.Run(ctx, func(events []watcher.Event) {
			s.logger.Debug("config file changed", "path", events[len(events)-1].Path, "events", len(events))
			s.Invalidate()
		})
	}()

	return nil
}
