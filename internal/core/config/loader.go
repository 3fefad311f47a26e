package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.Connectivity.Paths) == 0 {
		return nil, fmt.Errorf("at least one connection path is required")
	}
	for i, p := range cfg.Connectivity.Paths {
		if p.Name == "" {
			return nil, fmt.Errorf("connection path %d has no name", i)
		}
	}

	// Set defaults if necessary
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Connectivity.CacheTTL == 0 {
		cfg.Connectivity.CacheTTL = 60 * time.Second
	}
	if cfg.Connectivity.CommandTimeout == 0 {
		cfg.Connectivity.CommandTimeout = 60 * time.Second
	}
	if cfg.Metrics.JobName == "" {
		cfg.Metrics.JobName = "sigitm_etl"
	}

	if cfg.Phases.Connect.Timeout == 0 {
		cfg.Phases.Connect.Timeout = 3 * time.Minute
	}
	if cfg.Phases.Extract.Timeout == 0 {
		cfg.Phases.Extract.Timeout = 10 * time.Minute
	}
	if cfg.Phases.Transform.Timeout == 0 {
		cfg.Phases.Transform.Timeout = 2 * time.Minute
	}
	if cfg.Phases.Load.Timeout == 0 {
		cfg.Phases.Load.Timeout = 5 * time.Minute
	}
	if cfg.Phases.CleanupTimeout == 0 {
		cfg.Phases.CleanupTimeout = 5 * time.Second
	}

	return &cfg, nil
}
