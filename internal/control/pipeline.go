package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/sigitm-etl/internal/core/config"
	"github.com/vietddude/sigitm-etl/internal/core/cutoff"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/core/retry"
	"github.com/vietddude/sigitm-etl/internal/infra/netpath"
	"github.com/vietddude/sigitm-etl/internal/infra/portal"
	redisclient "github.com/vietddude/sigitm-etl/internal/infra/redis"
	"github.com/vietddude/sigitm-etl/internal/infra/storage/postgres"
	"github.com/vietddude/sigitm-etl/internal/pipeline/connectivity"
	"github.com/vietddude/sigitm-etl/internal/pipeline/metrics"
	"github.com/vietddude/sigitm-etl/internal/pipeline/orchestrator"
	"github.com/vietddude/sigitm-etl/internal/transform"
)

// runLock serializes pipeline runs across processes. Satisfied by the
// redis client; nil when no lock is configured.
type runLock interface {
	AcquireRunLock(ctx context.Context, runID string) (bool, error)
	ReleaseRunLock(ctx context.Context, runID string) error
	Holder(ctx context.Context) (string, error)
	Close() error
}

// runJournal persists finalized run reports, best-effort.
type runJournal interface {
	Record(ctx context.Context, report *domain.RunReport) error
	Prune(ctx context.Context) (int64, error)
}

// Pipeline is the fully wired ETL assembly for one scheduled run.
type Pipeline struct {
	cfg     *config.AppConfig
	machine *connectivity.Machine
	orch    *orchestrator.Orchestrator
	db      *postgres.DB
	journal runJournal
	lock    runLock
	window  cutoff.Window
	log     *slog.Logger
}

// NewPipeline creates a new Pipeline instance with all dependencies
// initialized.
func NewPipeline(cfg *config.AppConfig, log *slog.Logger) (*Pipeline, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Extraction window from the cutoff rule
	window, err := cfg.Cutoff.WindowAt(time.Now())
	if err != nil {
		return nil, fmt.Errorf("compute extraction window: %w", err)
	}

	// 2. Connectivity
	driver := netpath.NewExecDriver(cfg.Connectivity.CommandTimeout, log)
	machine := connectivity.NewMachine(driver, cfg.Connectivity.ConnectionPaths(), cfg.Connectivity.CacheTTL, log)

	// 3. Portal extraction behind the challenge solver
	solver, err := portal.NewHTTPSolver(cfg.Portal.Solver, log)
	if err != nil {
		return nil, fmt.Errorf("init challenge solver: %w", err)
	}
	client, err := portal.NewClient(cfg.Portal, solver, log)
	if err != nil {
		return nil, fmt.Errorf("init portal client: %w", err)
	}

	// 4. Transformation targets the same table the loader writes
	transformer := transform.New(cfg.Database.Table, log)

	// 5. Storage
	db, err := postgres.NewDB(context.Background(), cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := postgres.Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	loader := postgres.NewTicketLoader(db, log)
	journal := postgres.NewRunJournal(db, log)

	// 6. Optional run lock
	var lock runLock
	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		lock = rc
		log.Info("run lock enabled")
	}

	orch := orchestrator.New(orchestrator.Config{
		Connect:        phaseSettings(cfg.Phases.Connect),
		Extract:        phaseSettings(cfg.Phases.Extract),
		Transform:      phaseSettings(cfg.Phases.Transform),
		Load:           phaseSettings(cfg.Phases.Load),
		CleanupTimeout: cfg.Phases.CleanupTimeout,
	}, machine, client, transformer, loader, window, log)

	return &Pipeline{
		cfg:     cfg,
		machine: machine,
		orch:    orch,
		db:      db,
		journal: journal,
		lock:    lock,
		window:  window,
		log:     log,
	}, nil
}

func phaseSettings(pc config.PhaseConfig) orchestrator.PhaseSettings {
	return orchestrator.PhaseSettings{
		Policy:  retry.NewExponentialBackoff(pc.Retry),
		Timeout: pc.Timeout,
	}
}

// Run executes one full pipeline run and returns the finalized report.
// Journal and metrics delivery are best-effort; only the phases decide
// the outcome.
func (p *Pipeline) Run(ctx context.Context) (*domain.RunReport, error) {
	if p.lock != nil {
		token := uuid.New().String()
		ok, err := p.lock.AcquireRunLock(ctx, token)
		if err != nil {
			p.log.Warn("run lock unavailable, proceeding without it", "error", err)
		} else if !ok {
			holder, _ := p.lock.Holder(ctx)
			return nil, fmt.Errorf("another run holds the lock (%s)", holder)
		} else {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := p.lock.ReleaseRunLock(releaseCtx, token); err != nil {
					p.log.Warn("failed to release run lock", "error", err)
				}
			}()
		}
	}

	report := p.orch.Run(ctx)

	p.journalRun(report)

	if err := metrics.Push(p.cfg.Metrics, report.RunID); err != nil {
		p.log.Warn("failed to push metrics", "error", err)
	}

	return report, nil
}

func (p *Pipeline) journalRun(report *domain.RunReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := p.journal.Record(ctx, report); err != nil {
		p.log.Warn("failed to journal run", "run_id", report.RunID, "error", err)
		return
	}
	if _, err := p.journal.Prune(ctx); err != nil {
		p.log.Warn("failed to prune journal", "error", err)
	}
}

// Close tears down any established tunnel and releases connections.
func (p *Pipeline) Close(ctx context.Context) error {
	p.log.Info("closing pipeline")

	var firstErr error
	if err := p.machine.Teardown(ctx); err != nil {
		p.log.Warn("failed to tear down connection path", "error", err)
		firstErr = err
	}
	if err := p.db.Close(); err != nil {
		p.log.Warn("failed to close db", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	if p.lock != nil {
		if err := p.lock.Close(); err != nil {
			p.log.Warn("failed to close redis", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
