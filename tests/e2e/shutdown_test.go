package e2e

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/vietddude/sigitm-etl/internal/control"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// A cancelled run must come back as a failed report, cancel the remote
// execution and still close cleanly.
func TestCancelledRun_Live(t *testing.T) {
	if os.Getenv("E2E_LIVE") == "" {
		t.Skip("Skipping live E2E test. Set E2E_LIVE=true to run.")
	}

	dbName := "sigitm_test_cancel"
	testDB := setupTestDB(t, dbName)
	defer testDB.Close()

	// Execution never completes, so the run sits in the status poll
	// until we cancel it.
	fp := &fakePortal{answer: "ETL42", execRunning: true}
	srv := httptest.NewServer(fp.handler())
	defer srv.Close()

	cfg := testConfig(t, srv, dbName)

	app, err := control.NewPipeline(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(500 * time.Millisecond)
		cancel()
	}()

	report, err := app.Run(ctx)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if report.ExitCode != 1 {
		t.Fatalf("Expected exit code 1 after cancellation, got %d", report.ExitCode)
	}
	if len(report.Phases) != 2 {
		t.Fatalf("Expected connect+extract only, got %d phases", len(report.Phases))
	}
	if got := report.Phases[1].Status; got != domain.PhaseAborted {
		t.Errorf("Expected aborted extract phase, got %q", got)
	}

	// Remote cleanup runs detached from the cancelled run context
	if execs := fp.cancelledExecs(); len(execs) != 1 || execs[0] != "e-1" {
		t.Errorf("Expected remote execution e-1 cancelled, got %v", execs)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := app.Close(stopCtx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
