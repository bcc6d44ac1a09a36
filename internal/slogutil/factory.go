package slogutil

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"typelens/internal/config"
)

// Factory builds loggers from the logging configuration. CLI overrides win
// over the configured level and file.
type Factory struct {
	cfg      config.LoggingConfig
	level    slog.Level
	levelSet bool
	file     string
	closers  []io.Closer
}

// NewFactory creates a factory for cfg.
func NewFactory(cfg config.LoggingConfig) *Factory {
	return &Factory{cfg: cfg, file: cfg.File}
}

// OverrideLevel replaces the configured level.
func (f *Factory) OverrideLevel(level slog.Level) {
	f.level = level
	f.levelSet = true
}

// OverrideFile replaces the configured log file.
func (f *Factory) OverrideFile(path string) {
	if path != "" {
		f.file = path
	}
}

// Level returns the effective level.
func (f *Factory) Level() slog.Level {
	if f.levelSet {
		return f.level
	}
	return LevelFromString(f.cfg.Level)
}

// Logger returns a logger writing to stderr, teed into the log file when
// one is configured. Stdout is never used.
func (f *Factory) Logger() (*slog.Logger, error) {
	level := f.Level()
	stderr := NewLogger(os.Stderr, level, f.cfg.Format).Handler()
	if f.file == "" {
		return slog.New(stderr), nil
	}

	w, err := OpenRotatingFile(f.file, ParseSize(f.cfg.MaxSize), f.cfg.MaxBackups)
	if err != nil {
		return nil, err
	}
	f.closers = append(f.closers, w)

	file := NewLogger(w, min(level, slog.LevelInfo), f.cfg.Format).Handler()
	return slog.New(NewTeeHandler(stderr, file)), nil
}

// Close closes every file opened by the factory.
func (f *Factory) Close() error {
	var errs []error
	for _, c := range f.closers {
		errs = append(errs, c.Close())
	}
	f.closers = nil
	return errors.Join(errs...)
}
