package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for toolpilot.
type Config struct {
	General   GeneralConfig   `json:"general" yaml:"general"`
	Provider  ProviderConfig  `json:"provider" yaml:"provider"`
	Database  DatabaseConfig  `json:"database" yaml:"database"`
	Tools     ToolsConfig     `json:"tools" yaml:"tools"`
	Transport TransportConfig `json:"transport" yaml:"transport"`
	Audit     AuditConfig     `json:"audit" yaml:"audit"`
}

type GeneralConfig struct {
	// Workspace is the confinement root for the file capabilities.
	Workspace          string `json:"workspace" yaml:"workspace"`
	LogLevel           string `json:"logLevel" yaml:"logLevel"`
	LogFile            string `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	MaxIterations      int    `json:"maxIterations" yaml:"maxIterations"`
	ToolTimeoutSeconds int    `json:"toolTimeoutSeconds" yaml:"toolTimeoutSeconds"`
	SystemPromptExtra  string `json:"systemPromptExtra,omitempty" yaml:"systemPromptExtra,omitempty"`
}

// ProviderConfig selects and configures the model backend.
type ProviderConfig struct {
	Name           string `json:"name" yaml:"name"` // claude | openai | ollama | gemini
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	APIBase        string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	Model          string `json:"model,omitempty" yaml:"model,omitempty"`
	MaxTokens      int    `json:"maxTokens" yaml:"maxTokens"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
	// ReadKeywords are the leading keywords classified as row-returning reads.
	ReadKeywords []string `json:"readKeywords,omitempty" yaml:"readKeywords,omitempty"`
	// InitScript is a SQL file executed once at startup.
	InitScript string `json:"initScript,omitempty" yaml:"initScript,omitempty"`
}

type ToolsConfig struct {
	Files   FilesToolConfig   `json:"files" yaml:"files"`
	Code    CodeToolConfig    `json:"code" yaml:"code"`
	Search  SearchToolConfig  `json:"search" yaml:"search"`
	Web     WebToolConfig     `json:"web" yaml:"web"`
	Weather WeatherToolConfig `json:"weather" yaml:"weather"`
	Sports  SportsToolConfig  `json:"sports" yaml:"sports"`
}

type FilesToolConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

type CodeToolConfig struct {
	Enabled        bool `json:"enabled" yaml:"enabled"`
	TimeoutSeconds int  `json:"timeoutSeconds" yaml:"timeoutSeconds"`
	MaxOutputBytes int  `json:"maxOutputBytes" yaml:"maxOutputBytes"`
	// Interpreters overrides the built-in language table when non-empty.
	Interpreters map[string]InterpreterConfig `json:"interpreters,omitempty" yaml:"interpreters,omitempty"`
}

type InterpreterConfig struct {
	Command   string   `json:"command" yaml:"command"`
	Args      []string `json:"args,omitempty" yaml:"args,omitempty"`
	Extension string   `json:"extension" yaml:"extension"`
}

type SearchToolConfig struct {
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type WebToolConfig struct {
	FetchEnabled bool `json:"fetchEnabled" yaml:"fetchEnabled"`
}

type WeatherToolConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type SportsToolConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

// TransportConfig decides where capabilities live. "local" runs them in-process;
// "stdio" spawns Command as a capability host; "http" dials Endpoint.
// Listen is the address `serve --http` binds when none is given.
type TransportConfig struct {
	Mode     string `json:"mode" yaml:"mode"`
	Command  string `json:"command,omitempty" yaml:"command,omitempty"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Listen   string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// AuditConfig configures the operational log of capability calls.
type AuditConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

// DefaultConfigDir returns the default config directory (~/.toolpilot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".toolpilot"
	}
	return filepath.Join(home, ".toolpilot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Load reads path over Defaults(). Secrets may live in a .env file next to the config
// or in the working directory; ${VAR} references are expanded after those are loaded.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	if err := finalize(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefaults is Load, except that a missing file yields Defaults() with .env
// secrets and environment fallbacks applied. found reports whether the file existed.
func LoadOrDefaults(path string) (cfg *Config, found bool, err error) {
	if _, statErr := os.Stat(ExpandPath(path)); errors.Is(statErr, os.ErrNotExist) {
		loadDotEnv(".env")
		cfg = Defaults()
		if err := finalize(cfg); err != nil {
			return nil, false, err
		}
		return cfg, false, nil
	}
	cfg, err = Load(path)
	return cfg, err == nil, err
}

func finalize(cfg *Config) error {
	applyEnvFallbacks(cfg)
	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Database.Path = ExpandPath(cfg.Database.Path)
	cfg.Database.InitScript = ExpandPath(cfg.Database.InitScript)
	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)

	if err := Validate(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	return nil
}

// loadDotEnv loads each existing file without overriding variables already set.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// providerKeyEnv lists the conventional key variable per backend.
var providerKeyEnv = map[string]string{
	"claude": "ANTHROPIC_API_KEY",
	"openai": "OPENAI_API_KEY",
	"gemini": "GEMINI_API_KEY",
}

// applyEnvFallbacks fills empty secrets from conventional environment variables.
func applyEnvFallbacks(cfg *Config) {
	if cfg.Provider.APIKey == "" {
		if key, ok := providerKeyEnv[cfg.Provider.Name]; ok {
			cfg.Provider.APIKey = os.Getenv(key)
		}
	}
	if cfg.Tools.Search.APIKey == "" {
		cfg.Tools.Search.APIKey = os.Getenv("BRAVE_SEARCH_API_KEY")
	}
	if cfg.Tools.Sports.APIKey == "" {
		cfg.Tools.Sports.APIKey = os.Getenv("THESPORTSDB_API_KEY")
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes cfg as YAML or JSON depending on the extension of path.
func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Validate reports every invalid value at once.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if strings.TrimSpace(cfg.General.Workspace) == "" {
		add("general.workspace is required")
	}
	if cfg.General.MaxIterations < 1 || cfg.General.MaxIterations > 200 {
		add("general.maxIterations must be between 1 and 200")
	}
	if cfg.General.ToolTimeoutSeconds < 1 {
		add("general.toolTimeoutSeconds must be >= 1")
	}
	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add("general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Provider.Name {
	case "claude", "openai", "ollama", "gemini":
	default:
		add("provider.name must be one of: claude, openai, ollama, gemini")
	}
	if cfg.Provider.MaxTokens < 1 {
		add("provider.maxTokens must be >= 1")
	}
	if cfg.Provider.TimeoutSeconds < 0 {
		add("provider.timeoutSeconds must be >= 0")
	}

	if cfg.Database.Enabled && strings.TrimSpace(cfg.Database.Path) == "" {
		add("database.path is required when the database is enabled")
	}

	if cfg.Tools.Code.Enabled {
		if cfg.Tools.Code.TimeoutSeconds < 1 {
			add("tools.code.timeoutSeconds must be >= 1")
		}
		if cfg.Tools.Code.MaxOutputBytes < 1 {
			add("tools.code.maxOutputBytes must be >= 1")
		}
		for lang, in := range cfg.Tools.Code.Interpreters {
			if in.Command == "" {
				add("tools.code.interpreters.%s: command is required", lang)
			}
		}
	}

	switch cfg.Transport.Mode {
	case "local":
	case "stdio":
		if strings.TrimSpace(cfg.Transport.Command) == "" {
			add("transport.command is required for stdio mode")
		}
	case "http":
		if !strings.HasPrefix(cfg.Transport.Endpoint, "http://") && !strings.HasPrefix(cfg.Transport.Endpoint, "https://") {
			add("transport.endpoint must be an http(s) URL for http mode")
		}
	default:
		add("transport.mode must be one of: local, stdio, http")
	}

	if cfg.Audit.Enabled && strings.TrimSpace(cfg.Audit.DBPath) == "" {
		add("audit.dbPath is required when audit is enabled")
	}

	return errors.Join(errs...)
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
