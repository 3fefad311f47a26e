package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// PhaseAttempts tracks operation attempts per phase and outcome
	PhaseAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigitm_etl_phase_attempts_total",
			Help: "Total number of phase attempts",
		},
		[]string{"phase", "outcome"},
	)

	// PhaseDuration tracks wall time per phase
	PhaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sigitm_etl_phase_duration_seconds",
			Help:    "Phase duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"phase", "status"},
	)

	// PathAttempts tracks connectivity attempts per connection path
	PathAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigitm_etl_path_attempts_total",
			Help: "Total number of connection path attempts",
		},
		[]string{"path", "outcome"},
	)

	// RowsLoaded tracks rows committed to the target table
	RowsLoaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sigitm_etl_rows_loaded_total",
			Help: "Total number of rows bulk-loaded",
		},
	)

	// RunsTotal tracks completed runs by final status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sigitm_etl_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"status"},
	)

	// RunDuration tracks the full run wall time
	RunDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sigitm_etl_run_duration_seconds",
			Help: "Duration of the last run in seconds",
		},
	)
)

// Config selects the optional push target for this batch process.
type Config struct {
	PushgatewayURL string `yaml:"pushgateway_url"`
	JobName        string `yaml:"job_name"`
}

// Push sends the default registry to the configured Pushgateway. A batch
// process has no scrape surface, so metrics leave at end of run. No-op
// without a URL.
func Push(cfg Config, runID string) error {
	if cfg.PushgatewayURL == "" {
		return nil
	}
	job := cfg.JobName
	if job == "" {
		job = "sigitm_etl"
	}
	if err := push.New(cfg.PushgatewayURL, job).
		Grouping("run_id", runID).
		Gatherer(prometheus.DefaultGatherer).
		Push(); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
