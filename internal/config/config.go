// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/relay-tui/internal/flush"
	"github.com/jeranaias/relay-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete relay configuration.
type Config struct {
	// General settings
	Version string `toml:"version"`

	// Flush policy configuration
	Flush FlushConfig `toml:"flush"`

	// Local (Ollama) configuration
	Local LocalConfig `toml:"local"`

	// Storage configuration
	Storage StorageConfig `toml:"storage"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// FlushConfig tunes when buffered stream text is released to the renderer.
type FlushConfig struct {
	// LengthThreshold is the rune count above which prose is flushed even
	// without a structural boundary. Clamped to [10, 4096].
	LengthThreshold int `toml:"length_threshold"`
	// DiscardOnCancel drops buffered text when a stream is aborted instead
	// of emitting it as a final partial segment.
	DiscardOnCancel bool `toml:"discard_on_cancel"`
	// Rules are user-defined boundary patterns layered on top of the
	// built-in catalog.
	Rules []RuleConfig `toml:"rules"`
}

// RuleConfig is one user-defined boundary pattern.
type RuleConfig struct {
	// Language is a free-form label for the rule ("sql", "rust").
	Language string `toml:"language"`
	// Pattern is a Go regular expression matched against the pending buffer.
	Pattern string `toml:"pattern"`
	// Boundary is the strongest boundary class the rule can justify:
	// "statement", "assignment", or "line".
	Boundary string `toml:"boundary"`
}

// LocalConfig contains local Ollama configuration.
type LocalConfig struct {
	// OllamaURL is the URL of the Ollama server
	OllamaURL string `toml:"ollama_url"`
	// OllamaModel is the default model to use with Ollama
	OllamaModel string `toml:"ollama_model"`
}

// StorageConfig contains transcript persistence configuration.
type StorageConfig struct {
	// Enabled controls whether finished streams are persisted
	Enabled bool `toml:"enabled"`
	// Path is the SQLite database path (empty = default ~/.relay/transcripts.db)
	Path string `toml:"path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowReasons annotates each rendered segment with its flush reason
	ShowReasons bool `toml:"show_reasons"`
	// MaxFPS caps renderer repaints per second. Clamped to [1, 120].
	MaxFPS int `toml:"max_fps"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Flush: FlushConfig{
			LengthThreshold: flush.DefaultLengthThreshold,
			DiscardOnCancel: false,
		},

		Local: LocalConfig{
			OllamaURL:   "http://127.0.0.1:11434",
			OllamaModel: "qwen2.5-coder:14b",
		},

		Storage: StorageConfig{
			Enabled: true,
		},

		UI: UIConfig{
			Theme:       "dark",
			ShowReasons: false,
			MaxFPS:      30,
			CompactMode: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the relay configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".relay"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from ~/.relay/config.toml, falling back to
// defaults when no file exists. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# relay configuration file\n")
	buf.WriteString("# Generated by relay - edit with care\n")
	buf.WriteString("\n")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Flush settings
	if c.Flush.LengthThreshold < 0 {
		errs = append(errs, ValidationError{
			Field:   "flush.length_threshold",
			Message: "must be non-negative",
		})
	}
	for i, rule := range c.Flush.Rules {
		if rule.Pattern == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flush.rules[%d].pattern", i),
				Message: "pattern must not be empty",
			})
			continue
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flush.rules[%d].pattern", i),
				Message: fmt.Sprintf("invalid regular expression: %v", err),
			})
		}
		if _, err := flush.ParseBoundaryClass(rule.Boundary); err != nil {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("flush.rules[%d].boundary", i),
				Message: err.Error(),
			})
		}
	}

	// Local settings
	if c.Local.OllamaURL != "" {
		if _, err := url.Parse(c.Local.OllamaURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "local.ollama_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
	}

	// UI settings
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.MaxFPS < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.max_fps",
			Message: "must be non-negative",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value fields and
// clamps out-of-range tunables.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	// Flush defaults. The threshold floor keeps the renderer from being
	// flooded with near-empty segments.
	if c.Flush.LengthThreshold == 0 {
		c.Flush.LengthThreshold = defaults.Flush.LengthThreshold
	}
	if c.Flush.LengthThreshold > 0 && c.Flush.LengthThreshold < 10 {
		c.Flush.LengthThreshold = 10
	}
	if c.Flush.LengthThreshold > 4096 {
		c.Flush.LengthThreshold = 4096
	}

	// Local defaults
	if c.Local.OllamaURL == "" {
		c.Local.OllamaURL = defaults.Local.OllamaURL
	}
	if c.Local.OllamaModel == "" {
		c.Local.OllamaModel = defaults.Local.OllamaModel
	}

	// UI defaults
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.UI.MaxFPS == 0 {
		c.UI.MaxFPS = defaults.UI.MaxFPS
	}
	if c.UI.MaxFPS > 120 {
		c.UI.MaxFPS = 120
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RELAY_MODEL: overrides local.ollama_model
//   - RELAY_OLLAMA_URL: overrides local.ollama_url
//   - RELAY_FLUSH_THRESHOLD: overrides flush.length_threshold
//   - RELAY_DISCARD_ON_CANCEL: set to "1" or "true" to drop buffers on abort
//   - RELAY_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("RELAY_MODEL"); model != "" {
		c.Local.OllamaModel = model
	}

	if u := os.Getenv("RELAY_OLLAMA_URL"); u != "" {
		c.Local.OllamaURL = u
	}

	if raw := os.Getenv("RELAY_FLUSH_THRESHOLD"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			c.Flush.LengthThreshold = n
		}
	}

	if discard := os.Getenv("RELAY_DISCARD_ON_CANCEL"); discard != "" {
		c.Flush.DiscardOnCancel = discard == "1" || strings.ToLower(discard) == "true"
	}

	if theme := os.Getenv("RELAY_THEME"); theme != "" {
		c.UI.Theme = theme
	}
}

// =============================================================================
// CATALOG CONSTRUCTION
// =============================================================================

// BuildCatalog compiles the user-defined flush rules and layers them on the
// built-in catalog. Rules that fail to compile are skipped; Validate reports
// them before this point on the normal load path.
func (c *Config) BuildCatalog() *flush.Catalog {
	catalog := flush.DefaultCatalog()
	if len(c.Flush.Rules) == 0 {
		return catalog
	}

	var extra []flush.PatternRule
	for _, rule := range c.Flush.Rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			continue
		}
		boundary, err := flush.ParseBoundaryClass(rule.Boundary)
		if err != nil {
			continue
		}
		extra = append(extra, flush.PatternRule{
			Language: rule.Language,
			Pattern:  re,
			Boundary: boundary,
		})
	}
	if len(extra) == 0 {
		return catalog
	}
	return catalog.Extend(extra)
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Flush.Rules != nil {
		clone.Flush.Rules = make([]RuleConfig, len(c.Flush.Rules))
		copy(clone.Flush.Rules, c.Flush.Rules)
	}
	return &clone
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
