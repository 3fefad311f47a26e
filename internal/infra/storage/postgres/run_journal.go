package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// RunRecord is one journaled pipeline run.
type RunRecord struct {
	RunID     string    `db:"run_id"`
	StartedAt time.Time `db:"started_at"`
	EndedAt   time.Time `db:"ended_at"`
	Status    string    `db:"status"`
	ExitCode  int       `db:"exit_code"`
	Phases    []byte    `db:"phases"`
}

// RunJournal persists finalized run reports for later inspection. It
// is strictly best-effort: a journaling failure never changes the
// run's outcome.
type RunJournal struct {
	db  *DB
	log *slog.Logger
}

func NewRunJournal(db *DB, log *slog.Logger) *RunJournal {
	if log == nil {
		log = slog.Default()
	}
	return &RunJournal{db: db, log: log}
}

// Record inserts a finalized run report into the journal.
func (j *RunJournal) Record(ctx context.Context, report *domain.RunReport) error {
	phases, err := json.Marshal(report.Phases)
	if err != nil {
		return fmt.Errorf("marshal phases: %w", err)
	}

	rec := RunRecord{
		RunID:     report.RunID,
		StartedAt: report.StartedAt,
		EndedAt:   report.EndedAt,
		Status:    string(report.Status),
		ExitCode:  report.ExitCode,
		Phases:    phases,
	}

	const q = `
		INSERT INTO pipeline_runs (run_id, started_at, ended_at, status, exit_code, phases)
		VALUES (:run_id, :started_at, :ended_at, :status, :exit_code, :phases)
	`
	if _, err := j.db.NamedExecContext(ctx, q, rec); err != nil {
		return classify("journal run", err)
	}
	return nil
}

// Recent returns the latest journaled runs, newest first.
func (j *RunJournal) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	const q = `
		SELECT run_id, started_at, ended_at, status, exit_code, phases
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	var out []RunRecord
	if err := j.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, classify("read journal", err)
	}
	return out, nil
}

// Prune drops journal rows older than the retention window.
func (j *RunJournal) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -j.db.cfg.RetentionDays)

	res, err := j.db.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE started_at < $1`, cutoff)
	if err != nil {
		return 0, classify("prune journal", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune journal: %w", err)
	}
	if n > 0 {
		j.log.Info("journal pruned", "removed", n, "retention_days", j.db.cfg.RetentionDays)
	}
	return n, nil
}
