// Package config defines forge's configuration types and the loader that
// turns a YAML file (optionally live-reloaded) into a validated Config,
// the same Provider + two-stage-decode shape hector's pkg/config uses.
package config

import (
	"fmt"
	"time"
)

// OrchestratorConfig configures the priority scheduler (C4).
type OrchestratorConfig struct {
	Concurrency int `yaml:"concurrency,omitempty"`
}

func (c *OrchestratorConfig) SetDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
}

func (c *OrchestratorConfig) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be positive")
	}
	return nil
}

// PipelineConfig configures the Stream Pipeline (C5).
type PipelineConfig struct {
	ReadConcurrency int `yaml:"read_concurrency,omitempty"`
	CacheSize       int `yaml:"cache_size,omitempty"`
}

func (c *PipelineConfig) SetDefaults() {
	if c.ReadConcurrency <= 0 {
		c.ReadConcurrency = 8
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 256
	}
}

func (c *PipelineConfig) Validate() error {
	if c.ReadConcurrency <= 0 {
		return fmt.Errorf("pipeline.read_concurrency must be positive")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("pipeline.cache_size must be positive")
	}
	return nil
}

// RecoveryConfig configures the Error-Recovery Module (C6).
type RecoveryConfig struct {
	MaxAttempts        int     `yaml:"max_attempts,omitempty"`
	MinConfidence      float64 `yaml:"min_confidence,omitempty"`
	MaxRisk            string  `yaml:"max_risk,omitempty"`
	FailureThreshold   int     `yaml:"failure_threshold,omitempty"`
	RequestByteBudget  int     `yaml:"request_byte_budget,omitempty"`
}

func (c *RecoveryConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = 0.3
	}
	if c.MaxRisk == "" {
		c.MaxRisk = "medium"
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.RequestByteBudget <= 0 {
		c.RequestByteBudget = 4096
	}
}

func (c *RecoveryConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("recovery.max_attempts must be positive")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("recovery.min_confidence must be within [0,1]")
	}
	switch c.MaxRisk {
	case "low", "medium", "high":
	default:
		return fmt.Errorf("recovery.max_risk must be one of low, medium, high")
	}
	return nil
}

// SafetyConfig configures the Command Sanitizer & Path Validator (C2).
type SafetyConfig struct {
	AllowedBasePaths  []string `yaml:"allowed_base_paths,omitempty"`
	ForbiddenPatterns []string `yaml:"forbidden_patterns,omitempty"`
	StrictCommands    bool     `yaml:"strict_commands,omitempty"`
}

func (c *SafetyConfig) SetDefaults() {
	if len(c.ForbiddenPatterns) == 0 {
		c.ForbiddenPatterns = defaultForbiddenPatterns
	}
}

func (c *SafetyConfig) Validate() error {
	if len(c.AllowedBasePaths) == 0 {
		return fmt.Errorf("safety.allowed_base_paths must name at least one directory")
	}
	return nil
}

var defaultForbiddenPatterns = []string{
	"..", "/etc/passwd", "/etc/shadow", "/proc/", "/sys/", "/dev/", "/.ssh/",
}

// LoggerConfig configures logging (see pkg/logger).
type LoggerConfig struct {
	Level string `yaml:"level,omitempty"`
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Config is forge's top-level configuration.
type Config struct {
	Orchestrator OrchestratorConfig `yaml:"orchestrator,omitempty"`
	Pipeline     PipelineConfig     `yaml:"pipeline,omitempty"`
	Recovery     RecoveryConfig     `yaml:"recovery,omitempty"`
	Safety       SafetyConfig       `yaml:"safety,omitempty"`
	Logger       LoggerConfig       `yaml:"logger,omitempty"`
	WorkingDir   string             `yaml:"working_dir,omitempty"`
}

// SetDefaults fills in every field group's defaults.
func (c *Config) SetDefaults() {
	c.Orchestrator.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Recovery.SetDefaults()
	c.Safety.SetDefaults()
	c.Logger.SetDefaults()
	if c.WorkingDir == "" {
		c.WorkingDir = "."
	}
}

// Validate checks every field group in turn, matching hector's
// per-section Validate() composition in pkg/config/types.go.
func (c *Config) Validate() error {
	if err := c.Orchestrator.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Validate(); err != nil {
		return err
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	if err := c.Safety.Validate(); err != nil {
		return err
	}
	return nil
}

// Default returns a Config with every default applied, rooted at the
// given single allowed base directory — the zero-config path a CLI falls
// back to when no config file is given.
func Default(allowedBase string) *Config {
	c := &Config{Safety: SafetyConfig{AllowedBasePaths: []string{allowedBase}}}
	c.SetDefaults()
	return c
}

// RecoveryAttemptTimeout is a two-minute duration for a single recovery
// attempt. No package reads it: pkg/recovery waits for an attempt's
// result for the invocation's own timeout plus five seconds, or 30
// seconds when the invocation has none.
const RecoveryAttemptTimeout = 2 * time.Minute
