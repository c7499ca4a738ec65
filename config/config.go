// Package config loads and validates the full pipeline configuration.
package config

import (
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/quant/canary"
	"github.com/rustyeddy/quant/execution"
	"github.com/rustyeddy/quant/pkg/logger"
	"github.com/rustyeddy/quant/risk"
)

// Config represents the complete pipeline configuration.
type Config struct {
	Account   AccountConfig    `yaml:"account"`
	Model     ModelConfig      `yaml:"model"`
	Router    RouterConfig     `yaml:"router"`
	Risk      risk.Limits      `yaml:"risk"`
	Execution execution.Config `yaml:"execution"`
	Canary    canary.Config    `yaml:"canary"`
	Journal   JournalConfig    `yaml:"journal"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Log       logger.Config    `yaml:"log"`
}

// AccountConfig contains portfolio initialization parameters.
type AccountConfig struct {
	Currency string  `yaml:"currency" default:"USD"`
	Value    float64 `yaml:"value" default:"100000" validate:"gt=0"`
}

// ModelConfig locates the regime model. An empty path uses the built-in
// default bank.
type ModelConfig struct {
	Path string `yaml:"path,omitempty"`
}

// RouterConfig contains policy selection parameters.
type RouterConfig struct {
	Exploration  float64 `yaml:"exploration" default:"0.5" validate:"gte=0"`
	LearningRate float64 `yaml:"learning_rate" default:"0.01" validate:"gt=0,lte=1"`
	Posterior    string  `yaml:"posterior" default:"beta" validate:"oneof=beta normal"`
}

// JournalConfig contains decision journaling parameters.
type JournalConfig struct {
	Type   string `yaml:"type" default:"sqlite" validate:"oneof=sqlite csv none"`
	DBPath string `yaml:"db_path,omitempty" default:"quant.db"`
	Dir    string `yaml:"dir,omitempty" default:"journal"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"false"`
	Listen  string `yaml:"listen" default:":9090"`
}

// Default returns a fully populated configuration with production
// defaults.
func Default() *Config {
	cfg := &Config{Canary: canary.DefaultConfig()}
	defaults.MustSet(cfg)
	return cfg
}

// LoadFromFile loads configuration from a YAML file, fills unset fields
// with defaults, and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	if (cfg.Canary == canary.Config{}) {
		cfg.Canary = canary.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes the configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Journal.Type == "sqlite" && c.Journal.DBPath == "" {
		return fmt.Errorf("journal.db_path is required for sqlite journals")
	}
	if c.Journal.Type == "csv" && c.Journal.Dir == "" {
		return fmt.Errorf("journal.dir is required for csv journals")
	}
	return nil
}
