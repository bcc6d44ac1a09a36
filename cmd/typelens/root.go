package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"typelens/internal/config"
	"typelens/internal/slogutil"
	"typelens/internal/version"
)

var (
	repoFlag    string
	verboseFlag int
	quietFlag   bool
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:   "typelens",
	Short: "typelens - reference count annotations for editors",
	Long: `typelens annotates the declarations of a document with the number of
places they are referenced from, and highlights the ones nothing uses.

It runs as a stdio language server (typelens serve) or annotates a single
file from the command line (typelens annotate).`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("typelens version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", ".", "Repository root")
	rootCmd.PersistentFlags().CountVarP(&verboseFlag, "verbose", "v", "Increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress all log output on stderr")
	rootCmd.PersistentFlags().StringVar(&logFileFlag, "log-file", "", "Also write logs to this file")
}

// repoRoot returns the absolute repository root from --repo.
func repoRoot() (string, error) {
	return filepath.Abs(repoFlag)
}

// newLogger builds the process logger from cfg and the logging flags. The
// returned func closes any log file.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	factory := slogutil.NewFactory(cfg.Logging)
	if verboseFlag > 0 || quietFlag {
		factory.OverrideLevel(slogutil.LevelFromVerbosity(verboseFlag, quietFlag))
	}
	factory.OverrideFile(logFileFlag)

	logger, err := factory.Logger()
	if err != nil {
		return nil, nil, err
	}
	return logger, func() { _ = factory.Close() }, nil
}

// loadConfig loads the repository configuration, falling back to defaults
// when the file is unreadable so logging can still be set up.
func loadConfig(root string) *config.Config {
	cfg, err := config.LoadConfig(root)
	if err != nil {
		slogutil.NewLogger(os.Stderr, slog.LevelWarn, "human").Warn("Using default configuration",
			"repo", root,
			"error", err.Error(),
		)
		return config.DefaultConfig()
	}
	return cfg
}
