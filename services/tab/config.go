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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab/session"
)

// Defaults for every tunable. The config file and ALEUTIAN_TAB_*
// environment variables override them in that order.
const (
	DefaultDebounceMS       = 250
	DefaultNearbyTolerance  = 8
	DefaultStalenessMS      = 2000
	DefaultRequestTimeoutMS = 30000
	DefaultContextLines     = 20
	DefaultMemoTTLSeconds   = 300
	DefaultMemoMaxEntries   = 100
	DefaultUCBConstant      = 1.41
	DefaultMinObservations  = 30
	DefaultAutosaveEvery    = 20
	DefaultFeedbackCap      = 1000
	DefaultModel            = "qwen2.5-coder:1.5b"
)

// Config is the daemon's full configuration surface.
//
// # Description
//
// Client-side knobs (debounce, tolerance, staleness) feed session
// construction in the demo and any embedded client; server-side knobs
// shape the engine, memo cache, bandit, and persistence. Durations are
// carried as integers in the unit named by the field so the yaml stays
// hand-editable; accessor methods convert.
type Config struct {
	DebounceMS       int `yaml:"debounce_ms"`
	NearbyTolerance  int `yaml:"nearby_tolerance"`
	StalenessMS      int `yaml:"staleness_ms"`
	RequestTimeoutMS int `yaml:"request_timeout_ms"`
	ContextLines     int `yaml:"context_lines"`

	MemoTTLSeconds int `yaml:"memo_ttl_s"`
	MemoMaxEntries int `yaml:"memo_max_entries"`

	UCBConstant       float64 `yaml:"ucb_c"`
	MinObservations   int64   `yaml:"min_observations"`
	ProtectedStrategy string  `yaml:"protected_strategy"`
	AutosaveEvery     int     `yaml:"autosave_every"`
	FeedbackCap       int     `yaml:"feedback_cap"`

	// DataDir holds policy.json, feedback.jsonl, and by default the
	// strategies file.
	DataDir        string `yaml:"data_dir"`
	StrategiesFile string `yaml:"strategies_file"`

	Model string `yaml:"model"`

	// HTTPAddr enables the debug HTTP listener (ws, stats, metrics).
	// Empty keeps the daemon stdio-only.
	HTTPAddr string `yaml:"http_addr"`

	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"`

	// Quiet drops stderr logging, for editors that surface daemon
	// stderr to the user.
	Quiet bool `yaml:"quiet"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		DebounceMS:        DefaultDebounceMS,
		NearbyTolerance:   DefaultNearbyTolerance,
		StalenessMS:       DefaultStalenessMS,
		RequestTimeoutMS:  DefaultRequestTimeoutMS,
		ContextLines:      DefaultContextLines,
		MemoTTLSeconds:    DefaultMemoTTLSeconds,
		MemoMaxEntries:    DefaultMemoMaxEntries,
		UCBConstant:       DefaultUCBConstant,
		MinObservations:   DefaultMinObservations,
		ProtectedStrategy: "standard",
		AutosaveEvery:     DefaultAutosaveEvery,
		FeedbackCap:       DefaultFeedbackCap,
		DataDir:           logging.ExpandPath("~/.aleutian/tab"),
		Model:             DefaultModel,
		LogLevel:          "info",
	}
}

// DefaultConfigPath is where LoadConfig looks when no path is given.
func DefaultConfigPath() string {
	return logging.ExpandPath("~/.aleutian/tab/config.yaml")
}

// LoadConfig builds the effective configuration: defaults, then the
// yaml file, then environment overrides.
//
// A missing file at the default path is fine; a missing file at an
// explicitly given path is an error, since the caller asked for it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if path == "" {
		path = DefaultConfigPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Run on defaults.
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if cfg.StrategiesFile == "" {
		cfg.StrategiesFile = filepath.Join(cfg.DataDir, "strategies.yaml")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	envString("ALEUTIAN_TAB_MODEL", &c.Model)
	envString("ALEUTIAN_TAB_DATA_DIR", &c.DataDir)
	envString("ALEUTIAN_TAB_STRATEGIES_FILE", &c.StrategiesFile)
	envString("ALEUTIAN_TAB_HTTP_ADDR", &c.HTTPAddr)
	envString("ALEUTIAN_TAB_LOG_LEVEL", &c.LogLevel)
	envString("ALEUTIAN_TAB_LOG_DIR", &c.LogDir)
	envString("ALEUTIAN_TAB_PROTECTED_STRATEGY", &c.ProtectedStrategy)

	for _, v := range []struct {
		key string
		dst *int
	}{
		{"ALEUTIAN_TAB_DEBOUNCE_MS", &c.DebounceMS},
		{"ALEUTIAN_TAB_NEARBY_TOLERANCE", &c.NearbyTolerance},
		{"ALEUTIAN_TAB_STALENESS_MS", &c.StalenessMS},
		{"ALEUTIAN_TAB_REQUEST_TIMEOUT_MS", &c.RequestTimeoutMS},
		{"ALEUTIAN_TAB_CONTEXT_LINES", &c.ContextLines},
		{"ALEUTIAN_TAB_MEMO_TTL_S", &c.MemoTTLSeconds},
		{"ALEUTIAN_TAB_MEMO_MAX_ENTRIES", &c.MemoMaxEntries},
		{"ALEUTIAN_TAB_AUTOSAVE_EVERY", &c.AutosaveEvery},
		{"ALEUTIAN_TAB_FEEDBACK_CAP", &c.FeedbackCap},
	} {
		if err := envInt(v.key, v.dst); err != nil {
			return err
		}
	}
	if err := envInt64("ALEUTIAN_TAB_MIN_OBSERVATIONS", &c.MinObservations); err != nil {
		return err
	}
	if err := envFloat("ALEUTIAN_TAB_UCB_C", &c.UCBConstant); err != nil {
		return err
	}
	return envBool("ALEUTIAN_TAB_QUIET", &c.Quiet)
}

// Validate checks the config for usable values.
func (c *Config) Validate() error {
	switch {
	case c.DebounceMS <= 0:
		return errors.New("config: debounce_ms must be positive")
	case c.NearbyTolerance < 0:
		return errors.New("config: nearby_tolerance must not be negative")
	case c.StalenessMS <= 0:
		return errors.New("config: staleness_ms must be positive")
	case c.RequestTimeoutMS <= 0:
		return errors.New("config: request_timeout_ms must be positive")
	case c.ContextLines < 0 || c.ContextLines > 200:
		return errors.New("config: context_lines must be in 0..200")
	case c.MemoTTLSeconds <= 0:
		return errors.New("config: memo_ttl_s must be positive")
	case c.MemoMaxEntries <= 0:
		return errors.New("config: memo_max_entries must be positive")
	case c.UCBConstant <= 0:
		return errors.New("config: ucb_c must be positive")
	case c.MinObservations < 1:
		return errors.New("config: min_observations must be at least 1")
	case c.AutosaveEvery < 1:
		return errors.New("config: autosave_every must be at least 1")
	case c.FeedbackCap < 1:
		return errors.New("config: feedback_cap must be at least 1")
	case c.Model == "":
		return errors.New("config: model must be set")
	case c.DataDir == "":
		return errors.New("config: data_dir must be set")
	}
	return nil
}

// Debounce returns the fetch debounce window.
func (c Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Staleness returns the cache staleness threshold.
func (c Config) Staleness() time.Duration {
	return time.Duration(c.StalenessMS) * time.Millisecond
}

// RequestTimeout returns the per-fetch deadline.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// MemoTTL returns the memo cache entry lifetime.
func (c Config) MemoTTL() time.Duration {
	return time.Duration(c.MemoTTLSeconds) * time.Second
}

// SessionConfig maps the client-side knobs onto a session.Config.
func (c Config) SessionConfig() session.Config {
	sc := session.DefaultConfig()
	sc.Debounce = c.Debounce()
	sc.NearbyTolerance = c.NearbyTolerance
	sc.StaleAfter = c.Staleness()
	sc.FetchTimeout = c.RequestTimeout()
	sc.ContextLines = c.ContextLines
	return sc
}

// LoggerConfig maps the logging knobs onto a pkg/logging Config.
func (c Config) LoggerConfig(service string) logging.Config {
	return logging.Config{
		Level:   logging.ParseLevel(c.LogLevel),
		LogDir:  c.LogDir,
		Service: service,
		Quiet:   c.Quiet,
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = f
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = b
	return nil
}
