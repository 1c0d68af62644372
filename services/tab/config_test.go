// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tab

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// Point HOME at an empty dir so no real config file leaks in.
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DebounceMS != DefaultDebounceMS {
		t.Errorf("DebounceMS = %d, want %d", cfg.DebounceMS, DefaultDebounceMS)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultModel)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want stdio-only default", cfg.HTTPAddr)
	}
	if want := filepath.Join(cfg.DataDir, "strategies.yaml"); cfg.StrategiesFile != want {
		t.Errorf("StrategiesFile = %q, want %q", cfg.StrategiesFile, want)
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
debounce_ms: 150
nearby_tolerance: 4
model: codellama:7b
http_addr: "127.0.0.1:8199"
data_dir: ` + dir + `
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DebounceMS != 150 || cfg.NearbyTolerance != 4 {
		t.Errorf("client knobs = %d/%d, want 150/4", cfg.DebounceMS, cfg.NearbyTolerance)
	}
	if cfg.Model != "codellama:7b" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.HTTPAddr != "127.0.0.1:8199" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	// Untouched keys keep their defaults.
	if cfg.StalenessMS != DefaultStalenessMS {
		t.Errorf("StalenessMS = %d, want default %d", cfg.StalenessMS, DefaultStalenessMS)
	}
	if want := filepath.Join(dir, "strategies.yaml"); cfg.StrategiesFile != want {
		t.Errorf("StrategiesFile = %q, want %q", cfg.StrategiesFile, want)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing explicit config path")
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ALEUTIAN_TAB_MODEL", "deepseek-coder:6.7b")
	t.Setenv("ALEUTIAN_TAB_DEBOUNCE_MS", "275")
	t.Setenv("ALEUTIAN_TAB_QUIET", "true")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Model != "deepseek-coder:6.7b" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.DebounceMS != 275 {
		t.Errorf("DebounceMS = %d, want 275", cfg.DebounceMS)
	}
	if !cfg.Quiet {
		t.Error("Quiet should be set")
	}
}

func TestLoadConfig_BadEnvValue(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ALEUTIAN_TAB_DEBOUNCE_MS", "fast")

	if _, err := LoadConfig(""); err == nil {
		t.Fatal("expected an error for a non-numeric env override")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name  string
		mutil func(*Config)
	}{
		{"zero debounce", func(c *Config) { c.DebounceMS = 0 }},
		{"negative tolerance", func(c *Config) { c.NearbyTolerance = -1 }},
		{"zero staleness", func(c *Config) { c.StalenessMS = 0 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeoutMS = 0 }},
		{"context lines too large", func(c *Config) { c.ContextLines = 500 }},
		{"zero memo ttl", func(c *Config) { c.MemoTTLSeconds = 0 }},
		{"zero memo entries", func(c *Config) { c.MemoMaxEntries = 0 }},
		{"zero ucb constant", func(c *Config) { c.UCBConstant = 0 }},
		{"zero min observations", func(c *Config) { c.MinObservations = 0 }},
		{"zero autosave", func(c *Config) { c.AutosaveEvery = 0 }},
		{"zero feedback cap", func(c *Config) { c.FeedbackCap = 0 }},
		{"empty model", func(c *Config) { c.Model = "" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutil(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}

	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_SessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DebounceMS = 220
	cfg.NearbyTolerance = 5
	cfg.StalenessMS = 1500
	cfg.RequestTimeoutMS = 10000
	cfg.ContextLines = 12

	sc := cfg.SessionConfig()
	if sc.Debounce != 220*time.Millisecond {
		t.Errorf("Debounce = %v", sc.Debounce)
	}
	if sc.NearbyTolerance != 5 {
		t.Errorf("NearbyTolerance = %d", sc.NearbyTolerance)
	}
	if sc.StaleAfter != 1500*time.Millisecond {
		t.Errorf("StaleAfter = %v", sc.StaleAfter)
	}
	if sc.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v", sc.FetchTimeout)
	}
	if sc.ContextLines != 12 {
		t.Errorf("ContextLines = %d", sc.ContextLines)
	}
}
