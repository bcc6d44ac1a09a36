package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// CurrentVersion is the configuration schema version.
const CurrentVersion = 1

// Namespace is the configuration section holding the lens settings.
const Namespace = "typelens"

// Config represents the complete typelens configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version" toml:"version" yaml:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot" toml:"repoRoot" yaml:"repoRoot"`

	TypeLens      Settings            `json:"typelens" mapstructure:"typelens" toml:"typelens" yaml:"typelens"`
	Backend       BackendConfig       `json:"backend" mapstructure:"backend" toml:"backend" yaml:"backend"`
	LspSupervisor LspSupervisorConfig `json:"lspSupervisor" mapstructure:"lspSupervisor" toml:"lspSupervisor" yaml:"lspSupervisor"`
	Extensions    map[string]string   `json:"extensions" mapstructure:"extensions" toml:"extensions" yaml:"extensions"`
	Logging       LoggingConfig       `json:"logging" mapstructure:"logging" toml:"logging" yaml:"logging"`
	Metrics       MetricsConfig       `json:"metrics" mapstructure:"metrics" toml:"metrics" yaml:"metrics"`
}

// Settings is the user-facing lens configuration. Key names follow the
// original editor settings so existing settings files carry over.
type Settings struct {
	Blackbox       []string `json:"blackbox" mapstructure:"blackbox" toml:"blackbox" yaml:"blackbox"`
	BlackboxTitle  string   `json:"blackboxTitle" mapstructure:"blackboxTitle" toml:"blackboxTitle" yaml:"blackboxTitle"`
	ExcludeSelf    bool     `json:"excludeself" mapstructure:"excludeself" toml:"excludeself" yaml:"excludeself"`
	Singular       string   `json:"singular" mapstructure:"singular" toml:"singular" yaml:"singular"`
	Plural         string   `json:"plural" mapstructure:"plural" toml:"plural" yaml:"plural"`
	NoReferences   string   `json:"noreferences" mapstructure:"noreferences" toml:"noreferences" yaml:"noreferences"`
	UnusedColor    string   `json:"unusedcolor" mapstructure:"unusedcolor" toml:"unusedcolor" yaml:"unusedcolor"`
	DecorateUnused bool     `json:"decorateunused" mapstructure:"decorateunused" toml:"decorateunused" yaml:"decorateunused"`
	SkipLanguages  []string `json:"skiplanguages" mapstructure:"skiplanguages" toml:"skiplanguages" yaml:"skiplanguages"`
	IgnoreList     []string `json:"ignorelist" mapstructure:"ignorelist" toml:"ignorelist" yaml:"ignorelist"`

	ShowReferencesForMethods    bool `json:"showReferencesForMethods" mapstructure:"showReferencesForMethods" toml:"showReferencesForMethods" yaml:"showReferencesForMethods"`
	ShowReferencesForFunctions  bool `json:"showReferencesForFunctions" mapstructure:"showReferencesForFunctions" toml:"showReferencesForFunctions" yaml:"showReferencesForFunctions"`
	ShowReferencesForProperties bool `json:"showReferencesForProperties" mapstructure:"showReferencesForProperties" toml:"showReferencesForProperties" yaml:"showReferencesForProperties"`
	ShowReferencesForClasses    bool `json:"showReferencesForClasses" mapstructure:"showReferencesForClasses" toml:"showReferencesForClasses" yaml:"showReferencesForClasses"`
	ShowReferencesForInterfaces bool `json:"showReferencesForInterfaces" mapstructure:"showReferencesForInterfaces" toml:"showReferencesForInterfaces" yaml:"showReferencesForInterfaces"`
	ShowReferencesForEnums      bool `json:"showReferencesForEnums" mapstructure:"showReferencesForEnums" toml:"showReferencesForEnums" yaml:"showReferencesForEnums"`
	ShowReferencesForVariables  bool `json:"showReferencesForVariables" mapstructure:"showReferencesForVariables" toml:"showReferencesForVariables" yaml:"showReferencesForVariables"`

	// Languages overrides the symbol kinds of interest per language id,
	// using kind names such as "method" or "class".
	Languages map[string][]string `json:"languages,omitempty" mapstructure:"languages" toml:"languages,omitempty" yaml:"languages,omitempty"`
}

// BackendConfig selects and configures the host providing outlines and references
type BackendConfig struct {
	// Kind is "lsp" or "scip".
	Kind string     `json:"kind" mapstructure:"kind" toml:"kind" yaml:"kind"`
	Lsp  LspConfig  `json:"lsp" mapstructure:"lsp" toml:"lsp" yaml:"lsp"`
	Scip ScipConfig `json:"scip" mapstructure:"scip" toml:"scip" yaml:"scip"`
}

// LspConfig contains LSP backend configuration
type LspConfig struct {
	Enabled bool                    `json:"enabled" mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	Servers map[string]LspServerCfg `json:"servers" mapstructure:"servers" toml:"servers" yaml:"servers"`
}

// LspServerCfg contains configuration for a single LSP server
type LspServerCfg struct {
	Command string   `json:"command" mapstructure:"command" toml:"command" yaml:"command"`
	Args    []string `json:"args" mapstructure:"args" toml:"args" yaml:"args"`
}

// ScipConfig contains SCIP backend configuration
type ScipConfig struct {
	IndexPath string `json:"indexPath" mapstructure:"indexPath" toml:"indexPath" yaml:"indexPath"`
}

// LspSupervisorConfig contains LSP supervisor configuration
type LspSupervisorConfig struct {
	MaxTotalProcesses    int     `json:"maxTotalProcesses" mapstructure:"maxTotalProcesses" toml:"maxTotalProcesses" yaml:"maxTotalProcesses"`
	QueueSizePerLanguage int     `json:"queueSizePerLanguage" mapstructure:"queueSizePerLanguage" toml:"queueSizePerLanguage" yaml:"queueSizePerLanguage"`
	MaxQueueWaitMs       int     `json:"maxQueueWaitMs" mapstructure:"maxQueueWaitMs" toml:"maxQueueWaitMs" yaml:"maxQueueWaitMs"`
	RequestTimeoutMs     int     `json:"requestTimeoutMs" mapstructure:"requestTimeoutMs" toml:"requestTimeoutMs" yaml:"requestTimeoutMs"`
	ReferencesPerSecond  float64 `json:"referencesPerSecond" mapstructure:"referencesPerSecond" toml:"referencesPerSecond" yaml:"referencesPerSecond"`
	ReferencesBurst      int     `json:"referencesBurst" mapstructure:"referencesBurst" toml:"referencesBurst" yaml:"referencesBurst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format" toml:"format" yaml:"format"`
	Level  string `json:"level" mapstructure:"level" toml:"level" yaml:"level"`
	File   string `json:"file,omitempty" mapstructure:"file" toml:"file,omitempty" yaml:"file,omitempty"`
	// MaxSize rotates File once it grows past this size, e.g. "10MB".
	MaxSize    string `json:"maxSize,omitempty" mapstructure:"maxSize" toml:"maxSize,omitempty" yaml:"maxSize,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty" mapstructure:"maxBackups" toml:"maxBackups,omitempty" yaml:"maxBackups,omitempty"`
}

// MetricsConfig contains Prometheus exposition settings
type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled" toml:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr" toml:"addr" yaml:"addr"`
}

// DefaultSettings returns the lens settings shipped by default.
func DefaultSettings() Settings {
	return Settings{
		Blackbox:       []string{},
		BlackboxTitle:  "<< called from blackbox >>",
		ExcludeSelf:    true,
		Singular:       "{0} reference",
		Plural:         "{0} references",
		NoReferences:   "no references",
		UnusedColor:    "#999",
		DecorateUnused: true,
		SkipLanguages:  []string{"csharp"},
		IgnoreList: []string{
			"ngOnChanges",
			"ngOnInit",
			"ngDoCheck",
			"ngAfterContentInit",
			"ngAfterContentChecked",
			"ngAfterViewInit",
			"ngAfterViewChecked",
			"ngOnDestroy",
		},
		ShowReferencesForMethods:    true,
		ShowReferencesForFunctions:  true,
		ShowReferencesForProperties: true,
		ShowReferencesForClasses:    true,
		ShowReferencesForInterfaces: true,
		ShowReferencesForEnums:      true,
		ShowReferencesForVariables:  true,
		Languages:                   map[string][]string{},
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentVersion,
		RepoRoot: ".",
		TypeLens: DefaultSettings(),
		Backend: BackendConfig{
			Kind: "lsp",
			Lsp: LspConfig{
				Enabled: true,
				Servers: map[string]LspServerCfg{
					"typescript": {
						Command: "typescript-language-server",
						Args:    []string{"--stdio"},
					},
					"go": {
						Command: "gopls",
						Args:    []string{},
					},
				},
			},
			Scip: ScipConfig{
				IndexPath: "index.scip",
			},
		},
		LspSupervisor: LspSupervisorConfig{
			MaxTotalProcesses:    4,
			QueueSizePerLanguage: 64,
			MaxQueueWaitMs:       200,
			RequestTimeoutMs:     30000,
			ReferencesPerSecond:  50,
			ReferencesBurst:      20,
		},
		Extensions: map[string]string{
			".ts":   "typescript",
			".mts":  "typescript",
			".cts":  "typescript",
			".tsx":  "typescriptreact",
			".js":   "javascript",
			".mjs":  "javascript",
			".cjs":  "javascript",
			".jsx":  "javascriptreact",
			".scss": "scss",
			".less": "less",
			".go":   "go",
			".py":   "python",
			".rs":   "rust",
			".java": "java",
			".cs":   "csharp",
		},
		Logging: LoggingConfig{
			Format:     "human",
			Level:      "info",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// ConfigDir is the per-repository configuration directory.
const ConfigDir = ".typelens"

// newViper builds a viper instance with defaults, file lookup and
// TYPELENS_* environment overrides wired in.
func newViper(repoRoot string) (*viper.Viper, error) {
	v := viper.New()

	if err := setDefaults(v, DefaultConfig()); err != nil {
		return nil, err
	}
	v.SetDefault("repoRoot", repoRoot)

	v.SetConfigName("config")
	v.AddConfigPath(filepath.Join(repoRoot, ConfigDir))

	v.SetEnvPrefix("TYPELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setDefaults registers every leaf of cfg as a viper default so partial
// files only override the keys they name.
func setDefaults(v *viper.Viper, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return err
	}
	for key, value := range flattenKeys("", tree) {
		v.SetDefault(key, value)
	}
	return nil
}

func flattenKeys(prefix string, tree map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{})
	for k, val := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]interface{}); ok && len(sub) > 0 && !isLeafMap(key) {
			for sk, sv := range flattenKeys(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = val
	}
	return out
}

// isLeafMap marks user-keyed maps that must be replaced as a whole.
func isLeafMap(key string) bool {
	switch key {
	case "extensions", "typelens.languages", "backend.lsp.servers":
		return true
	}
	return false
}

// decode unmarshals the viper state into a fresh Config.
func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if cfg.Extensions == nil {
		cfg.Extensions = map[string]string{}
	}
	if cfg.TypeLens.Languages == nil {
		cfg.TypeLens.Languages = map[string][]string{}
	}
	return &cfg, nil
}

// LoadConfig loads configuration from .typelens/config.{json,yaml,toml}
func LoadConfig(repoRoot string) (*Config, error) {
	v, err := newViper(repoRoot)
	if err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	return decode(v)
}

// LoadConfigFromPath loads configuration from an explicit file.
func LoadConfigFromPath(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	v, err := newViper(filepath.Dir(filepath.Dir(path)))
	if err != nil {
		return nil, err
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return decode(v)
}

// Save writes the configuration to .typelens/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return &ConfigError{Field: "version", Message: fmt.Sprintf("unsupported config version %d", c.Version)}
	}

	switch c.Backend.Kind {
	case "lsp", "scip":
	default:
		return &ConfigError{Field: "backend.kind", Message: fmt.Sprintf("unknown backend %q", c.Backend.Kind)}
	}

	if c.Backend.Kind == "scip" && c.Backend.Scip.IndexPath == "" {
		return &ConfigError{Field: "backend.scip.indexPath", Message: "index path is required for the scip backend"}
	}

	for name, tmpl := range map[string]string{
		"singular": c.TypeLens.Singular,
		"plural":   c.TypeLens.Plural,
	} {
		if !strings.Contains(tmpl, "{0}") {
			return &ConfigError{Field: Namespace + "." + name, Message: "template must contain {0}"}
		}
	}

	switch c.Logging.Format {
	case "human", "json":
	default:
		return &ConfigError{Field: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}

	if c.LspSupervisor.ReferencesPerSecond < 0 {
		return &ConfigError{Field: "lspSupervisor.referencesPerSecond", Message: "must not be negative"}
	}

	return nil
}

// LanguageForPath maps a file path to a language id using the configured
// extension table.
func (c *Config) LanguageForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := c.Extensions[ext]; ok {
		return lang
	}
	return strings.TrimPrefix(ext, ".")
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
