package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentVersion, cfg.Version)
	assert.Equal(t, "lsp", cfg.Backend.Kind)
	assert.Contains(t, cfg.Backend.Lsp.Servers, "typescript")

	s := cfg.TypeLens
	assert.Equal(t, "<< called from blackbox >>", s.BlackboxTitle)
	assert.True(t, s.ExcludeSelf)
	assert.Equal(t, "{0} reference", s.Singular)
	assert.Equal(t, "{0} references", s.Plural)
	assert.Equal(t, "no references", s.NoReferences)
	assert.Equal(t, "#999", s.UnusedColor)
	assert.True(t, s.DecorateUnused)
	assert.Equal(t, []string{"csharp"}, s.SkipLanguages)
	assert.Contains(t, s.IgnoreList, "ngOnInit")
	assert.Len(t, s.IgnoreList, 8)
	assert.True(t, s.ShowReferencesForVariables)
	assert.True(t, s.ShowReferencesForEnums)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{
			name:    "bad version",
			mutate:  func(c *Config) { c.Version = 99 },
			wantErr: "version",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend.Kind = "ctags" },
			wantErr: "backend.kind",
		},
		{
			name: "scip without index",
			mutate: func(c *Config) {
				c.Backend.Kind = "scip"
				c.Backend.Scip.IndexPath = ""
			},
			wantErr: "backend.scip.indexPath",
		},
		{
			name:    "plural without placeholder",
			mutate:  func(c *Config) { c.TypeLens.Plural = "many" },
			wantErr: "typelens.plural",
		},
		{
			name:    "negative rate",
			mutate:  func(c *Config) { c.LspSupervisor.ReferencesPerSecond = -1 },
			wantErr: "referencesPerSecond",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantErr, cfgErr.Field)
		})
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().IgnoreList, cfg.TypeLens.IgnoreList)
	assert.Equal(t, dir, cfg.RepoRoot)
}

func TestLoadConfig_PartialFileOverridesOnlyNamedKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDir), 0755))

	yamlConfig := `
typelens:
  plural: "{0} usages"
  ignorelist:
    - main
  blackbox:
    - "**/generated/**"
backend:
  kind: scip
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDir, "config.yaml"), []byte(yamlConfig), 0644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "{0} usages", cfg.TypeLens.Plural)
	assert.Equal(t, "{0} reference", cfg.TypeLens.Singular)
	// Lists are replaced, not merged with the defaults.
	assert.Equal(t, []string{"main"}, cfg.TypeLens.IgnoreList)
	assert.Equal(t, []string{"**/generated/**"}, cfg.TypeLens.Blackbox)
	assert.Equal(t, "scip", cfg.Backend.Kind)
	assert.Equal(t, "index.scip", cfg.Backend.Scip.IndexPath)
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ConfigDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigDir, "config.json"), []byte("{not json"), 0644))

	_, err := LoadConfig(dir)
	assert.Error(t, err)
}

func TestConfig_SaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.TypeLens.UnusedColor = "#f00"
	cfg.TypeLens.Languages = map[string][]string{"go": {"function", "method"}}
	require.NoError(t, cfg.Save(dir))

	loaded, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "#f00", loaded.TypeLens.UnusedColor)
	assert.Equal(t, []string{"function", "method"}, loaded.TypeLens.Languages["go"])
}

func TestLoadConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigDir, "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("[typelens]\nexcludeself = false\n"), 0644))

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	assert.False(t, cfg.TypeLens.ExcludeSelf)

	_, err = LoadConfigFromPath(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestConfig_LanguageForPath(t *testing.T) {
	cfg := DefaultConfig()

	tests := map[string]string{
		"src/app.ts":      "typescript",
		"src/App.TSX":     "typescriptreact",
		"styles/main.scss": "scss",
		"main.go":         "go",
		"notes.txt":       "txt",
		"Makefile":        "",
	}
	for path, want := range tests {
		assert.Equal(t, want, cfg.LanguageForPath(path), path)
	}
}

func TestConfigError(t *testing.T) {
	err := &ConfigError{Field: "typelens.plural", Message: "template must contain {0}"}
	assert.Equal(t, "config error in field 'typelens.plural': template must contain {0}", err.Error())
}
