package config

import (
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/cutoff"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/core/retry"
	"github.com/vietddude/sigitm-etl/internal/infra/portal"
	redisclient "github.com/vietddude/sigitm-etl/internal/infra/redis"
	"github.com/vietddude/sigitm-etl/internal/infra/storage/postgres"
	"github.com/vietddude/sigitm-etl/internal/pipeline/metrics"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Cutoff       cutoff.Rule        `yaml:"cutoff"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Portal       portal.Config      `yaml:"portal"`
	Database     postgres.Config    `yaml:"database"`
	Redis        redisclient.Config `yaml:"redis"`
	Metrics      metrics.Config     `yaml:"metrics"`
	Phases       PhasesConfig       `yaml:"phases"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ConnectivityConfig holds the ordered connection paths and the state
// machine's cache settings.
type ConnectivityConfig struct {
	CacheTTL       time.Duration `yaml:"cache_ttl"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	Paths          []PathConfig  `yaml:"paths"`
}

// PathConfig holds settings for one candidate connection path. Paths
// are tried in the order they appear.
type PathConfig struct {
	Name         string        `yaml:"name"`
	ProbeAddr    string        `yaml:"probe_addr"`
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
	EstablishCmd []string      `yaml:"establish_cmd"`
	TeardownCmd  []string      `yaml:"teardown_cmd"`
}

// ConnectionPaths converts the configured paths into the domain form,
// preserving order.
func (c ConnectivityConfig) ConnectionPaths() []domain.ConnectionPath {
	paths := make([]domain.ConnectionPath, len(c.Paths))
	for i, p := range c.Paths {
		paths[i] = domain.ConnectionPath{
			Name:         p.Name,
			ProbeAddr:    p.ProbeAddr,
			ProbeTimeout: p.ProbeTimeout,
			EstablishCmd: p.EstablishCmd,
			TeardownCmd:  p.TeardownCmd,
		}
	}
	return paths
}

// PhaseConfig binds one phase's retry policy and per-attempt timeout.
type PhaseConfig struct {
	Retry   retry.Config  `yaml:"retry"`
	Timeout time.Duration `yaml:"timeout"`
}

// PhasesConfig holds the per-phase execution settings.
type PhasesConfig struct {
	Connect        PhaseConfig   `yaml:"connect"`
	Extract        PhaseConfig   `yaml:"extract"`
	Transform      PhaseConfig   `yaml:"transform"`
	Load           PhaseConfig   `yaml:"load"`
	CleanupTimeout time.Duration `yaml:"cleanup_timeout"`
}
