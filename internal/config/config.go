package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Inputs struct {
		Receipts    string `yaml:"receipts"`
		Enrollments string `yaml:"enrollments"`
		Rules       string `yaml:"rules"`
	} `yaml:"inputs"`
	Results struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"results"`
	Run struct {
		Workers   int    `yaml:"workers"`
		BatchSize int    `yaml:"batch_size"`
		Currency  string `yaml:"currency"`
	} `yaml:"run"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("RECON_RECEIPTS"); v != "" {
		cfg.Inputs.Receipts = v
	}
	if v := os.Getenv("RECON_ENROLLMENTS"); v != "" {
		cfg.Inputs.Enrollments = v
	}
	if v := os.Getenv("RECON_RULES"); v != "" {
		cfg.Inputs.Rules = v
	}
	if v := os.Getenv("RECON_RESULTS_DB"); v != "" {
		cfg.Results.SQLitePath = v
	}
	if v := os.Getenv("RECON_CURRENCY"); v != "" {
		cfg.Run.Currency = v
	}
	if v := os.Getenv("RECON_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.Workers = n
		}
	}
	if v := os.Getenv("RECON_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Run.BatchSize = n
		}
	}

	// Defaults
	if cfg.Results.SQLitePath == "" {
		cfg.Results.SQLitePath = "results.db"
	}
	if cfg.Run.Workers == 0 {
		cfg.Run.Workers = 4
	}
	if cfg.Run.BatchSize == 0 {
		cfg.Run.BatchSize = 500
	}
	if cfg.Run.Currency == "" {
		cfg.Run.Currency = "USD"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Inputs.Receipts == "" {
		return fmt.Errorf("inputs.receipts is required")
	}
	if c.Inputs.Enrollments == "" {
		return fmt.Errorf("inputs.enrollments is required")
	}
	if c.Inputs.Rules == "" {
		return fmt.Errorf("inputs.rules is required")
	}
	if c.Run.Workers <= 0 {
		return fmt.Errorf("run.workers must be positive")
	}
	if c.Run.BatchSize <= 0 {
		return fmt.Errorf("run.batch_size must be positive")
	}
	return nil
}
