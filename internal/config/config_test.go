// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/relay-tui/internal/flush"
)

// =============================================================================
// DEFAULTS AND VALIDATION
// =============================================================================

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}
	if cfg.Flush.LengthThreshold != flush.DefaultLengthThreshold {
		t.Errorf("LengthThreshold = %d, want %d", cfg.Flush.LengthThreshold, flush.DefaultLengthThreshold)
	}
	if cfg.Local.OllamaURL == "" {
		t.Error("Default OllamaURL should not be empty")
	}
}

func TestValidateRejectsBadTheme(t *testing.T) {
	cfg := Default()
	cfg.UI.Theme = "neon"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error for invalid theme")
	}
	if !strings.Contains(err.Error(), "ui.theme") {
		t.Errorf("Error should name ui.theme: %v", err)
	}
}

func TestValidateRejectsBadRule(t *testing.T) {
	cfg := Default()
	cfg.Flush.Rules = []RuleConfig{
		{Language: "sql", Pattern: "[unclosed", Boundary: "statement"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected validation error for invalid pattern")
	}

	cfg.Flush.Rules = []RuleConfig{
		{Language: "sql", Pattern: `;\s*$`, Boundary: "paragraph"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Expected validation error for unknown boundary class")
	}
}

func TestSetDefaultsClampsThreshold(t *testing.T) {
	cfg := Default()
	cfg.Flush.LengthThreshold = 3
	cfg.SetDefaults()
	if cfg.Flush.LengthThreshold != 10 {
		t.Errorf("Threshold = %d, want clamped to 10", cfg.Flush.LengthThreshold)
	}

	cfg.Flush.LengthThreshold = 100000
	cfg.SetDefaults()
	if cfg.Flush.LengthThreshold != 4096 {
		t.Errorf("Threshold = %d, want clamped to 4096", cfg.Flush.LengthThreshold)
	}
}

// =============================================================================
// LOAD / SAVE ROUND TRIP
// =============================================================================

func TestLoadFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = "1.0.0"

[flush]
length_threshold = 80
discard_on_cancel = true

[[flush.rules]]
language = "sql"
pattern = ';\s*$'
boundary = "statement"

[local]
ollama_url = "http://127.0.0.1:11434"
ollama_model = "llama3.2:3b"

[ui]
theme = "light"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Flush.LengthThreshold != 80 {
		t.Errorf("LengthThreshold = %d, want 80", cfg.Flush.LengthThreshold)
	}
	if !cfg.Flush.DiscardOnCancel {
		t.Error("DiscardOnCancel should be true")
	}
	if cfg.Local.OllamaModel != "llama3.2:3b" {
		t.Errorf("OllamaModel = %q, want llama3.2:3b", cfg.Local.OllamaModel)
	}
	if len(cfg.Flush.Rules) != 1 {
		t.Fatalf("Rules = %d, want 1", len(cfg.Flush.Rules))
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("Theme = %q, want light", cfg.UI.Theme)
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.Flush.LengthThreshold = 120
	cfg.Local.OllamaModel = "mistral:7b"

	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML failed: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if loaded.Flush.LengthThreshold != 120 {
		t.Errorf("LengthThreshold = %d, want 120", loaded.Flush.LengthThreshold)
	}
	if loaded.Local.OllamaModel != "mistral:7b" {
		t.Errorf("OllamaModel = %q, want mistral:7b", loaded.Local.OllamaModel)
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("RELAY_MODEL", "phi3:mini")
	t.Setenv("RELAY_FLUSH_THRESHOLD", "200")
	t.Setenv("RELAY_DISCARD_ON_CANCEL", "true")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Local.OllamaModel != "phi3:mini" {
		t.Errorf("OllamaModel = %q, want phi3:mini", cfg.Local.OllamaModel)
	}
	if cfg.Flush.LengthThreshold != 200 {
		t.Errorf("LengthThreshold = %d, want 200", cfg.Flush.LengthThreshold)
	}
	if !cfg.Flush.DiscardOnCancel {
		t.Error("DiscardOnCancel should be true")
	}
}

func TestEnvOverrideIgnoresBadThreshold(t *testing.T) {
	t.Setenv("RELAY_FLUSH_THRESHOLD", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Flush.LengthThreshold != flush.DefaultLengthThreshold {
		t.Errorf("LengthThreshold = %d, want default", cfg.Flush.LengthThreshold)
	}
}

// =============================================================================
// CATALOG CONSTRUCTION
// =============================================================================

func TestBuildCatalogLayersUserRules(t *testing.T) {
	cfg := Default()
	base := cfg.BuildCatalog()

	cfg.Flush.Rules = []RuleConfig{
		{Language: "sql", Pattern: `(?i)\b(select|insert|update|delete)\b`, Boundary: "line"},
	}
	extended := cfg.BuildCatalog()

	if extended.Len() != base.Len()+1 {
		t.Errorf("Extended catalog len = %d, want %d", extended.Len(), base.Len()+1)
	}
}

func TestBuildCatalogSkipsBrokenRules(t *testing.T) {
	cfg := Default()
	cfg.Flush.Rules = []RuleConfig{
		{Language: "bad", Pattern: "[unclosed", Boundary: "line"},
	}
	catalog := cfg.BuildCatalog()
	if catalog.Len() != flush.DefaultCatalog().Len() {
		t.Errorf("Broken rule should be skipped, len = %d", catalog.Len())
	}
}

func TestClone(t *testing.T) {
	cfg := Default()
	cfg.Flush.Rules = []RuleConfig{{Language: "sql", Pattern: ";", Boundary: "line"}}

	clone := cfg.Clone()
	clone.Flush.Rules[0].Language = "changed"

	if cfg.Flush.Rules[0].Language != "sql" {
		t.Error("Clone should not share rule slice with original")
	}
}
