package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"typelens/internal/config"
)

var (
	configShowFormat string
	configInitFormat string
	configInitForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage typelens configuration",
	Long:  "View and create the configuration stored in .typelens/config.{json,yaml,toml}",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Display the configuration typelens would run with: defaults, the
repository config file and TYPELENS_* environment overrides merged.

Examples:
  typelens config show
  typelens config show --format toml`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to .typelens",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

func init() {
	configShowCmd.Flags().StringVar(&configShowFormat, "format", "json", "Output format (json, yaml, toml)")
	configInitCmd.Flags().StringVar(&configInitFormat, "format", "json", "File format (json, yaml, toml)")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing configuration file")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(root)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return writeStructured(cmd.OutOrStdout(), cfg, OutputFormat(strings.ToLower(configShowFormat)))
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	path, err := initConfig(root, OutputFormat(strings.ToLower(configInitFormat)), configInitForce)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

// initConfig writes the default configuration under root/.typelens. Any
// existing config file, in any format, blocks the write unless force is set.
func initConfig(root string, format OutputFormat, force bool) (string, error) {
	name, err := configFileName(format)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(root, config.ConfigDir)
	if !force {
		for _, f := range []OutputFormat{FormatJSON, FormatYAML, FormatTOML} {
			existing, _ := configFileName(f)
			if _, err := os.Stat(filepath.Join(dir, existing)); err == nil {
				return "", fmt.Errorf("%s already exists (use --force to overwrite)", filepath.Join(dir, existing))
			}
		}
	}

	cfg := config.DefaultConfig()
	if format == FormatJSON {
		if err := cfg.Save(root); err != nil {
			return "", err
		}
		return filepath.Join(dir, name), nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := writeStructured(f, cfg, format); err != nil {
		f.Close()
		return "", err
	}
	return path, f.Close()
}
