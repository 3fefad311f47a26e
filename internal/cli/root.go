package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"
	"github.com/vietddude/sigitm-etl/internal/control"
	"github.com/vietddude/sigitm-etl/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "sigitm-etl",
	Short: "SIGITM closed-ticket ETL",
	Long:  `sigitm-etl extracts closed tickets from the SIGITM portal, normalizes the export and bulk-loads it into PostgreSQL. Built for unattended scheduled runs.`,
	Run:   runPipeline,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runPipeline(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	// Load Configuration
	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	initLogging(cfg)

	// Initialize Pipeline
	app, err := control.NewPipeline(cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize pipeline", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Warn("Received signal, cancelling run", "signal", sig)
		cancel()
	}()

	slog.Info("Pipeline starting", "config", cfgPath)

	report, err := app.Run(ctx)

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer closeCancel()
	if cerr := app.Close(closeCtx); cerr != nil {
		slog.Warn("Error during shutdown", "error", cerr)
	}

	if report == nil {
		slog.Error("Run aborted before any phase", "error", err)
		os.Exit(1)
	}

	slog.Info("Run finished",
		"run_id", report.RunID,
		"status", report.Status,
		"phases_started", len(report.Phases),
		"elapsed", report.Elapsed(),
		"exit_code", report.ExitCode,
	)
	os.Exit(report.ExitCode)
}

// initLogging installs the process-wide slog handler from the logging
// config. The --debug flag overrides the configured level.
func initLogging(cfg *config.AppConfig) {
	slogLevel := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	}
	if isDebug {
		slogLevel = slog.LevelDebug
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slogLevel,
		})))
		return
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
}
