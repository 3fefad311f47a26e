package control

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/config"
	"github.com/vietddude/sigitm-etl/internal/core/cutoff"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/core/retry"
	"github.com/vietddude/sigitm-etl/internal/pipeline/orchestrator"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeLock struct {
	mu         sync.Mutex
	held       bool
	acquireErr error
	holder     string
	acquired   []string
	released   []string
}

func (l *fakeLock) AcquireRunLock(_ context.Context, runID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	l.acquired = append(l.acquired, runID)
	return !l.held, nil
}

func (l *fakeLock) ReleaseRunLock(_ context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = append(l.released, runID)
	return nil
}

func (l *fakeLock) Holder(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, nil
}

func (l *fakeLock) Close() error { return nil }

func (l *fakeLock) tokens() (acquired, released []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.acquired...), append([]string(nil), l.released...)
}

type fakeJournal struct {
	mu      sync.Mutex
	reports []*domain.RunReport
	prunes  int
}

func (j *fakeJournal) Record(_ context.Context, report *domain.RunReport) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.reports = append(j.reports, report)
	return nil
}

func (j *fakeJournal) Prune(context.Context) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.prunes++
	return 0, nil
}

func (j *fakeJournal) count() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.reports)
}

func (j *fakeJournal) last() *domain.RunReport {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.reports) == 0 {
		return nil
	}
	return j.reports[len(j.reports)-1]
}

// healthy orchestrator collaborators

type fakeConnector struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeConnector) EnsureConnectivity(context.Context) (domain.ConnectivityState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return domain.ConnectivityState{
		Status:    domain.ConnectivityEstablished,
		Path:      "corporate",
		CheckedAt: time.Now(),
	}, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fakeArtifact struct{}

func (fakeArtifact) Ref() string { return "export.xlsx" }

type fakeExtractor struct{}

func (fakeExtractor) Run(context.Context, domain.QueryParams) (domain.Artifact, error) {
	return fakeArtifact{}, nil
}

type fakeTransformer struct{}

func (fakeTransformer) Run(context.Context, domain.Artifact, time.Time) (*domain.RecordSet, error) {
	rs := &domain.RecordSet{Schema: domain.RecordSchema{
		Table:   "tickets",
		Columns: []domain.Column{{Name: "sequencia", SQLType: "text"}},
	}}
	rs.Rows = append(rs.Rows, []any{"9001"}, []any{"9002"}, []any{"9003"})
	return rs, nil
}

type fakeLoader struct{}

func (fakeLoader) EnsureSchema(context.Context, domain.RecordSchema) error { return nil }

func (fakeLoader) BulkLoad(_ context.Context, rs *domain.RecordSet) (int64, error) {
	return int64(rs.RowCount()), nil
}

func fastSettings() orchestrator.PhaseSettings {
	return orchestrator.PhaseSettings{
		Policy:  retry.NewExponentialBackoff(retry.Config{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2.0}),
		Timeout: time.Second,
	}
}

func testWindow() cutoff.Window {
	return cutoff.Window{
		From: time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 6, 17, 0, 0, 0, 0, time.UTC),
	}
}

func testPipeline(lock runLock) (*Pipeline, *fakeConnector, *fakeJournal) {
	conn := &fakeConnector{}
	orch := orchestrator.New(orchestrator.Config{
		Connect:        fastSettings(),
		Extract:        fastSettings(),
		Transform:      fastSettings(),
		Load:           fastSettings(),
		CleanupTimeout: time.Second,
	}, conn, fakeExtractor{}, fakeTransformer{}, fakeLoader{}, testWindow(), nil)

	journal := &fakeJournal{}
	return &Pipeline{
		cfg:     &config.AppConfig{},
		orch:    orch,
		journal: journal,
		lock:    lock,
		window:  testWindow(),
		log:     slog.Default(),
	}, conn, journal
}

// =============================================================================
// Run lock
// =============================================================================

func TestRun_HeldLockAbortsBeforeAnyPhase(t *testing.T) {
	lock := &fakeLock{held: true, holder: "prior-run"}
	p, conn, journal := testPipeline(lock)

	report, err := p.Run(context.Background())
	if err == nil {
		t.Fatal("expected error while another run holds the lock")
	}
	if report != nil {
		t.Fatalf("expected no report, got status %s", report.Status)
	}
	if !strings.Contains(err.Error(), "prior-run") {
		t.Errorf("error should name the holder: %v", err)
	}
	if conn.count() != 0 {
		t.Error("no phase may start while the lock is held")
	}
	if journal.count() != 0 {
		t.Error("an aborted run must not be journaled")
	}
	if _, released := lock.tokens(); len(released) != 0 {
		t.Errorf("a lost acquire must not be released, got %d release calls", len(released))
	}
}

func TestRun_LockFailureOpen(t *testing.T) {
	lock := &fakeLock{acquireErr: errors.New("redis: connection refused")}
	p, conn, journal := testPipeline(lock)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("a lock outage must not block the run: %v", err)
	}
	if report == nil || report.ExitCode != 0 {
		t.Fatalf("expected a successful run, got %+v", report)
	}
	if conn.count() != 1 {
		t.Errorf("expected the run to proceed, connect calls = %d", conn.count())
	}
	if journal.count() != 1 {
		t.Errorf("expected the run journaled, got %d records", journal.count())
	}
	if _, released := lock.tokens(); len(released) != 0 {
		t.Errorf("no lock was acquired, got %d release calls", len(released))
	}
}

func TestRun_ReleasesOwnToken(t *testing.T) {
	lock := &fakeLock{}
	p, _, _ := testPipeline(lock)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", report.ExitCode)
	}

	acquired, released := lock.tokens()
	if len(acquired) != 1 || len(released) != 1 {
		t.Fatalf("expected one acquire and one release, got %d/%d", len(acquired), len(released))
	}
	if acquired[0] == "" {
		t.Error("lock token must not be empty")
	}
	if released[0] != acquired[0] {
		t.Errorf("released token %q, acquired %q", released[0], acquired[0])
	}
}

func TestRun_NoLockConfigured(t *testing.T) {
	p, conn, journal := testPipeline(nil)

	report, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != domain.RunSucceeded {
		t.Fatalf("expected succeeded, got %s", report.Status)
	}
	if conn.count() != 1 {
		t.Errorf("expected one connect call, got %d", conn.count())
	}
	if journal.count() != 1 {
		t.Fatalf("expected the run journaled, got %d records", journal.count())
	}
	if journal.last().RunID != report.RunID {
		t.Errorf("journaled run %s, report run %s", journal.last().RunID, report.RunID)
	}
}
