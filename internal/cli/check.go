package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/sigitm-etl/internal/core/config"
	"github.com/vietddude/sigitm-etl/internal/infra/netpath"
	"github.com/vietddude/sigitm-etl/internal/pipeline/connectivity"
)

var checkTeardown bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe the configured connection paths without running the pipeline",
	Run:   runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkTeardown, "teardown", true, "tear the path down again after a successful check")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	initLogging(cfg)

	paths := cfg.Connectivity.ConnectionPaths()
	driver := netpath.NewExecDriver(cfg.Connectivity.CommandTimeout, slog.Default())
	machine := connectivity.NewMachine(driver, paths, 0, slog.Default())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	state, err := machine.EnsureConnectivity(ctx)
	attempts := machine.Attempts()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "PATH\tRESULT\tDURATION\tCAUSE")
	for i, a := range attempts {
		name := "?"
		if i < len(paths) {
			name = paths[i].Name
		}
		result := "unreachable"
		cause := a.Cause
		if a.OK {
			result = "reachable"
			cause = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, result, a.Duration.Round(time.Millisecond), cause)
	}
	_ = w.Flush()

	if checkTeardown {
		if terr := machine.Teardown(ctx); terr != nil {
			slog.Warn("Teardown after check failed", "error", terr)
		}
	}

	if err != nil {
		slog.Error("No reachable path", "paths_tried", len(attempts), "error", err)
		os.Exit(1)
	}
	fmt.Printf("Connectivity established via %s\n", state.Path)
}
