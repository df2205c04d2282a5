// Package config loads and validates the process configuration. The config
// is read once at startup, expanded from environment variables, and injected
// into components at construction; nothing reads it from global state later.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for groundbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Line     LineConfig     `json:"line"`
	Telegram TelegramConfig `json:"telegram"`
	Document DocumentConfig `json:"document"`
	Cache    CacheConfig    `json:"cache"`
	Prompt   PromptConfig   `json:"prompt"`
	Gemini   GeminiConfig   `json:"gemini"`
	Replies  RepliesConfig  `json:"replies"`
	Audit    AuditConfig    `json:"audit"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel              string `json:"logLevel"`          // debug | info | warn | error
	LogFile               string `json:"logFile,omitempty"` // optional log file path
	MaxConcurrentRequests int    `json:"maxConcurrentRequests"`
}

// LineConfig configures the LINE webhook gateway and reply client.
type LineConfig struct {
	Port               int    `json:"port"`
	WebhookPath        string `json:"webhookPath"`
	ChannelSecret      string `json:"channelSecret"`
	ChannelAccessToken string `json:"channelAccessToken"`
	APIBase            string `json:"apiBase,omitempty"`    // override for tests
	AdminToken         string `json:"adminToken,omitempty"` // enables POST /admin/refresh when set
	SendTimeoutSeconds int    `json:"sendTimeoutSeconds"`
}

// TelegramConfig configures the optional secondary Telegram channel.
type TelegramConfig struct {
	Enabled            bool     `json:"enabled"`
	Token              string   `json:"token,omitempty"`
	AllowFrom          []string `json:"allowFrom,omitempty"` // allowed user IDs, empty = allow all
	SendTimeoutSeconds int      `json:"sendTimeoutSeconds"`
}

// DocumentConfig identifies the grounding document in the document store.
type DocumentConfig struct {
	ID                  string `json:"id"`
	MimeType            string `json:"mimeType,omitempty"` // overrides the type reported by the store
	APIBase             string `json:"apiBase,omitempty"`
	AccessToken         string `json:"accessToken"`
	FetchTimeoutSeconds int    `json:"fetchTimeoutSeconds"`
}

// CacheConfig tunes the document cache refresh policy.
type CacheConfig struct {
	// RefreshIntervalMinutes is the staleness interval after which the next
	// access refreshes the document. 0 means fetch once per cold start and
	// refresh only on an explicit invalidation signal.
	RefreshIntervalMinutes int `json:"refreshIntervalMinutes"`
}

type PromptConfig struct {
	// MaxBytes is the assembled prompt ceiling in bytes, not characters;
	// multibyte text fits fewer characters under the same ceiling.
	MaxBytes int    `json:"maxBytes"`
	Preamble string `json:"preamble,omitempty"` // replaces the built-in instruction text
}

// GeminiConfig configures the generation client.
type GeminiConfig struct {
	APIKey         string `json:"apiKey"`
	Model          string `json:"model"`
	APIBase        string `json:"apiBase,omitempty"`
	MaxAttempts    int    `json:"maxAttempts"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// RepliesConfig points at an optional YAML file overriding the fixed
// user-visible fallback texts.
type RepliesConfig struct {
	File string `json:"file,omitempty"`
}

type AuditConfig struct {
	Enabled bool   `json:"enabled"`
	DBPath  string `json:"dbPath"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
	Port    int  `json:"port"`
}

// DefaultConfigDir returns the default config directory (~/.groundbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".groundbot"
	}
	return filepath.Join(home, ".groundbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Audit.DBPath = ExpandPath(cfg.Audit.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Replies.File = ExpandPath(cfg.Replies.File)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
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
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	if cfg.General.MaxConcurrentRequests < 1 || cfg.General.MaxConcurrentRequests > 100 {
		errs = append(errs, "general.maxConcurrentRequests must be between 1 and 100")
	}

	if cfg.Line.Port < 0 || cfg.Line.Port > 65535 {
		errs = append(errs, "line.port must be between 0 and 65535")
	}
	if cfg.Line.WebhookPath != "" && !strings.HasPrefix(cfg.Line.WebhookPath, "/") {
		errs = append(errs, "line.webhookPath must start with /")
	}
	if cfg.Line.SendTimeoutSeconds < 1 {
		errs = append(errs, "line.sendTimeoutSeconds must be >= 1")
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required when telegram is enabled")
	}
	if cfg.Telegram.Enabled && cfg.Telegram.SendTimeoutSeconds < 1 {
		errs = append(errs, "telegram.sendTimeoutSeconds must be >= 1 when telegram is enabled")
	}

	if cfg.Document.FetchTimeoutSeconds < 1 {
		errs = append(errs, "document.fetchTimeoutSeconds must be >= 1")
	}
	if cfg.Cache.RefreshIntervalMinutes < 0 {
		errs = append(errs, "cache.refreshIntervalMinutes must be >= 0")
	}

	if cfg.Prompt.MaxBytes < 256 {
		errs = append(errs, "prompt.maxBytes must be >= 256")
	}

	if cfg.Gemini.MaxAttempts < 1 || cfg.Gemini.MaxAttempts > 10 {
		errs = append(errs, "gemini.maxAttempts must be between 1 and 10")
	}
	if cfg.Gemini.TimeoutSeconds < 1 {
		errs = append(errs, "gemini.timeoutSeconds must be >= 1")
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535) {
		errs = append(errs, "metrics.port must be between 1 and 65535 when metrics are enabled")
	}
	if cfg.Audit.Enabled && cfg.Audit.DBPath == "" {
		errs = append(errs, "audit.dbPath is required when audit is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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
