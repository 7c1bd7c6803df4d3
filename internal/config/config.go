// Package config loads the control-plane configuration from YAML with
// sensible defaults for every limit.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Guard     GuardConfig     `yaml:"guard"`
	Limits    LimitsConfig    `yaml:"limits"`
	Validator ValidatorConfig `yaml:"validator"`
	Iteration IterationConfig `yaml:"iteration"`
	Lock      LockConfig      `yaml:"lock"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type ChainConfig struct {
	MaxDepth             int `yaml:"max_depth"`
	InvocationTimeoutSec int `yaml:"invocation_timeout_sec"`
}

type GuardConfig struct {
	MaxDepth             int     `yaml:"max_depth"`
	MaxDuplicates        int     `yaml:"max_duplicates"`
	LoopWindow           int     `yaml:"loop_window"`
	ExecutionTimeoutSec  int     `yaml:"execution_timeout_sec"`
	SafetyScoreThreshold float64 `yaml:"safety_score_threshold"`
	PlanLengthThreshold  int     `yaml:"plan_length_threshold"`
}

type LimitsConfig struct {
	MaxMessages        int `yaml:"max_messages"`
	MaxSteps           int `yaml:"max_steps"`
	MaxEscalationLevel int `yaml:"max_escalation_level"`
	MaxCollaborations  int `yaml:"max_collaborations"`
}

type ValidatorConfig struct {
	MaxPasses  int   `yaml:"max_passes"`
	AutoRepair *bool `yaml:"auto_repair"` // nil means enabled
}

func (v ValidatorConfig) AutoRepairEnabled() bool {
	return v.AutoRepair == nil || *v.AutoRepair
}

type IterationConfig struct {
	MaxIterations int `yaml:"max_iterations"`
}

type LockConfig struct {
	Path           string `yaml:"path"`
	MaxWaitSec     int    `yaml:"max_wait_sec"`
	PollIntervalMs int    `yaml:"poll_interval_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads a YAML config file. A missing file yields the defaults;
// any present section overrides only the fields it sets.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyDefaults(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain.MaxDepth <= 0 {
		cfg.Chain.MaxDepth = 5
	}
	if cfg.Chain.InvocationTimeoutSec <= 0 {
		cfg.Chain.InvocationTimeoutSec = 60
	}
	if cfg.Guard.MaxDepth <= 0 {
		cfg.Guard.MaxDepth = 3
	}
	if cfg.Guard.MaxDuplicates <= 0 {
		cfg.Guard.MaxDuplicates = 2
	}
	if cfg.Guard.LoopWindow <= 0 {
		cfg.Guard.LoopWindow = 5
	}
	if cfg.Guard.ExecutionTimeoutSec <= 0 {
		cfg.Guard.ExecutionTimeoutSec = 30
	}
	if cfg.Guard.SafetyScoreThreshold <= 0 {
		cfg.Guard.SafetyScoreThreshold = 0.7
	}
	if cfg.Guard.PlanLengthThreshold <= 0 {
		cfg.Guard.PlanLengthThreshold = 10
	}
	if cfg.Limits.MaxMessages <= 0 {
		cfg.Limits.MaxMessages = 1000
	}
	if cfg.Limits.MaxSteps <= 0 {
		cfg.Limits.MaxSteps = 50
	}
	if cfg.Limits.MaxEscalationLevel <= 0 {
		cfg.Limits.MaxEscalationLevel = 7
	}
	if cfg.Limits.MaxCollaborations <= 0 {
		cfg.Limits.MaxCollaborations = 10
	}
	if cfg.Validator.MaxPasses <= 0 {
		cfg.Validator.MaxPasses = 3
	}
	if cfg.Iteration.MaxIterations <= 0 {
		cfg.Iteration.MaxIterations = 10
	}
	if cfg.Lock.Path == "" {
		cfg.Lock.Path = "/tmp/ki_autoagent_backend.lock"
	}
	if cfg.Lock.MaxWaitSec <= 0 {
		cfg.Lock.MaxWaitSec = 60
	}
	if cfg.Lock.PollIntervalMs <= 0 {
		cfg.Lock.PollIntervalMs = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
