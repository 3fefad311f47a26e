package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/sigitm-etl/internal/core/config"
	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent pipeline runs from the journal",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "number of runs to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	journal := postgres.NewRunJournal(db, slog.Default())
	runs, err := journal.Recent(ctx, statusLimit)
	if err != nil {
		slog.Error("Failed to query runs", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "RUN\tSTARTED\tELAPSED\tSTATUS\tEXIT\tPHASES")

	for _, run := range runs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(run.RunID),
			run.StartedAt.Local().Format(time.DateTime),
			run.EndedAt.Sub(run.StartedAt).Round(time.Second),
			run.Status,
			run.ExitCode,
			phaseSummary(run.Phases),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// phaseSummary renders the journaled phase results as a compact
// "connect:ok extract:failed" line.
func phaseSummary(raw []byte) string {
	var phases []domain.PhaseResult
	if err := json.Unmarshal(raw, &phases); err != nil || len(phases) == 0 {
		return "-"
	}

	parts := make([]string, 0, len(phases))
	for _, p := range phases {
		status := string(p.Status)
		if p.Status == domain.PhaseSucceeded {
			status = "ok"
		}
		parts = append(parts, fmt.Sprintf("%s:%s", p.Phase, status))
	}
	return strings.Join(parts, " ")
}
