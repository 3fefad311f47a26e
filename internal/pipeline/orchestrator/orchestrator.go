package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/cutoff"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/core/retry"
	"github.com/vietddude/sigitm-etl/internal/pipeline/executor"
	"github.com/vietddude/sigitm-etl/internal/pipeline/metrics"
)

// Connector yields network reachability for the connect phase.
type Connector interface {
	EnsureConnectivity(ctx context.Context) (domain.ConnectivityState, error)
}

// Extractor pulls the closed-ticket export from the portal.
type Extractor interface {
	Run(ctx context.Context, params domain.QueryParams) (domain.Artifact, error)
}

// Cleaner is implemented by extractors that can cancel partial
// remote-side query state after a failed extract phase.
type Cleaner interface {
	Cleanup(ctx context.Context) error
}

// Transformer normalizes an export artifact into a record set.
type Transformer interface {
	Run(ctx context.Context, artifact domain.Artifact, cutoffDate time.Time) (*domain.RecordSet, error)
}

// Loader persists a record set. BulkLoad is transactional: a failure
// mid-load leaves the target table untouched.
type Loader interface {
	EnsureSchema(ctx context.Context, schema domain.RecordSchema) error
	BulkLoad(ctx context.Context, rs *domain.RecordSet) (int64, error)
}

// PhaseSettings bind one phase's retry policy and per-attempt timeout.
type PhaseSettings struct {
	Policy  retry.Policy
	Timeout time.Duration
}

type Config struct {
	Connect   PhaseSettings
	Extract   PhaseSettings
	Transform PhaseSettings
	Load      PhaseSettings

	// CleanupTimeout bounds best-effort cleanup calls after the run's
	// outcome is already decided.
	CleanupTimeout time.Duration
}

// Orchestrator runs the four phases in fixed order, fail-fast, and
// produces the finalized RunReport. It never retries across phase
// boundaries and never inspects artifacts beyond passing them on.
type Orchestrator struct {
	cfg         Config
	exec        *executor.Executor
	connector   Connector
	extractor   Extractor
	transformer Transformer
	loader      Loader
	window      cutoff.Window
	log         *slog.Logger
}

func New(cfg Config, conn Connector, ex Extractor, tr Transformer, ld Loader, window cutoff.Window, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 5 * time.Second
	}
	return &Orchestrator{
		cfg:         cfg,
		exec:        executor.New(log),
		connector:   conn,
		extractor:   ex,
		transformer: tr,
		loader:      ld,
		window:      window,
		log:         log,
	}
}

// pathArtifact is the connect phase's product: the established state,
// surfaced for logging only.
type pathArtifact struct {
	state domain.ConnectivityState
}

func (a pathArtifact) Ref() string { return fmt.Sprintf("path(%s)", a.state.Path) }

// LoadSummary is the load phase's product.
type LoadSummary struct {
	Rows int64
}

func (s LoadSummary) Ref() string { return fmt.Sprintf("loaded(%d rows)", s.Rows) }

// Run executes Connect, Extract, Transform, Load. A failed phase
// finalizes the report immediately; downstream phases never start.
func (o *Orchestrator) Run(ctx context.Context) *domain.RunReport {
	report := domain.NewRunReport()
	log := o.log.With("run_id", report.RunID)
	log.Info("run started", "window", o.window.String())

	var established domain.ConnectivityState
	connectRes := o.runPhase(ctx, report, domain.PhaseConnect, o.cfg.Connect, func(ctx context.Context) (domain.Artifact, error) {
		state, err := o.connector.EnsureConnectivity(ctx)
		if err != nil {
			return nil, err
		}
		established = state
		return pathArtifact{state: state}, nil
	})
	if connectRes.Status != domain.PhaseSucceeded {
		return o.finalize(report, log)
	}

	extractRes := o.runPhase(ctx, report, domain.PhaseExtract, o.cfg.Extract, func(ctx context.Context) (domain.Artifact, error) {
		return o.extractor.Run(ctx, domain.QueryParams{
			From: o.window.From,
			To:   o.window.To,
			Path: established.Path,
		})
	})
	if extractRes.Status != domain.PhaseSucceeded {
		o.cleanupRemote(log)
		return o.finalize(report, log)
	}

	transformRes := o.runPhase(ctx, report, domain.PhaseTransform, o.cfg.Transform, func(ctx context.Context) (domain.Artifact, error) {
		rs, err := o.transformer.Run(ctx, extractRes.Artifact, o.window.To)
		if err != nil {
			return nil, err
		}
		return rs, nil
	})
	if transformRes.Status != domain.PhaseSucceeded {
		return o.finalize(report, log)
	}

	loadRes := o.runPhase(ctx, report, domain.PhaseLoad, o.cfg.Load, func(ctx context.Context) (domain.Artifact, error) {
		rs, ok := transformRes.Artifact.(*domain.RecordSet)
		if !ok {
			return nil, domain.Fatal(domain.KindMalformedInput,
				fmt.Errorf("transform artifact is %T, not a record set", transformRes.Artifact))
		}
		if err := o.loader.EnsureSchema(ctx, rs.Schema); err != nil {
			return nil, err
		}
		rows, err := o.loader.BulkLoad(ctx, rs)
		if err != nil {
			return nil, err
		}
		return LoadSummary{Rows: rows}, nil
	})
	if loadRes.Status != domain.PhaseSucceeded {
		return o.finalize(report, log)
	}

	if summary, ok := loadRes.Artifact.(LoadSummary); ok {
		metrics.RowsLoaded.Add(float64(summary.Rows))
		log.Info("load committed", "rows", summary.Rows)
	}

	o.discardArtifacts(report, log)
	return o.finalize(report, log)
}

func (o *Orchestrator) runPhase(ctx context.Context, report *domain.RunReport, phase domain.Phase, settings PhaseSettings, op executor.Operation) domain.PhaseResult {
	result := o.exec.Execute(ctx, phase, op, settings.Policy, settings.Timeout)
	report.Append(result)

	for _, a := range result.Attempts {
		outcome := "failure"
		if a.OK {
			outcome = "success"
		}
		metrics.PhaseAttempts.WithLabelValues(string(phase), outcome).Inc()
	}
	metrics.PhaseDuration.WithLabelValues(string(phase), string(result.Status)).Observe(result.Elapsed.Seconds())

	return result
}

// cleanupRemote asks the extractor to cancel partial query state.
// Best-effort under its own deadline, detached from the run context so
// an aborted run can still clean up.
func (o *Orchestrator) cleanupRemote(log *slog.Logger) {
	cleaner, ok := o.extractor.(Cleaner)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.CleanupTimeout)
	defer cancel()
	if err := cleaner.Cleanup(ctx); err != nil {
		log.Warn("remote cleanup failed", "error", err)
	}
}

// discardArtifacts releases transient phase outputs after a successful
// run. Failures here never change the run outcome.
func (o *Orchestrator) discardArtifacts(report *domain.RunReport, log *slog.Logger) {
	for _, phase := range report.Phases {
		d, ok := phase.Artifact.(domain.Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(); err != nil {
			log.Warn("artifact discard failed", "phase", phase.Phase, "error", err)
		} else {
			log.Debug("artifact discarded", "phase", phase.Phase, "ref", phase.Artifact.Ref())
		}
	}
}

func (o *Orchestrator) finalize(report *domain.RunReport, log *slog.Logger) *domain.RunReport {
	report.Finalize()

	metrics.RunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.RunDuration.Set(report.Elapsed().Seconds())

	log.Info("run finished",
		"status", report.Status,
		"exit_code", report.ExitCode,
		"phases", len(report.Phases),
		"elapsed", report.Elapsed(),
	)
	return report
}
