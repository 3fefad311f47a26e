package netpath

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strings"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

const (
	defaultProbeTimeout   = 5 * time.Second
	defaultCommandTimeout = 60 * time.Second
)

// ExecDriver affects real network state: reachability via a TCP dial to
// the path's probe address, establish/teardown by running the path's
// configured commands (the tunnel client CLI).
type ExecDriver struct {
	commandTimeout time.Duration
	log            *slog.Logger
}

func NewExecDriver(commandTimeout time.Duration, log *slog.Logger) *ExecDriver {
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &ExecDriver{commandTimeout: commandTimeout, log: log}
}

// Probe dials the path's probe address. A failed dial means unreachable,
// not a driver error.
func (d *ExecDriver) Probe(ctx context.Context, path domain.ConnectionPath) (bool, error) {
	if path.ProbeAddr == "" {
		return false, fmt.Errorf("path %s has no probe address", path.Name)
	}

	timeout := path.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return false, ctx.Err()
	}

	start := time.Now()
	conn, err := net.DialTimeout("tcp", path.ProbeAddr, timeout)
	if err != nil {
		d.log.Debug("probe dial failed", "path", path.Name, "addr", path.ProbeAddr, "error", err)
		return false, nil
	}
	_ = conn.Close()

	d.log.Debug("probe ok", "path", path.Name, "addr", path.ProbeAddr, "latency", time.Since(start))
	return true, nil
}

// Establish runs the path's connect command and waits for it to finish.
func (d *ExecDriver) Establish(ctx context.Context, path domain.ConnectionPath) error {
	if len(path.EstablishCmd) == 0 {
		return fmt.Errorf("path %s is probe-only", path.Name)
	}
	d.log.Info("running establish command", "path", path.Name, "cmd", strings.Join(path.EstablishCmd, " "))
	if err := d.runCommand(ctx, path.EstablishCmd); err != nil {
		return fmt.Errorf("establish %s: %w", path.Name, err)
	}
	return nil
}

// Teardown runs the path's disconnect command.
func (d *ExecDriver) Teardown(ctx context.Context, path domain.ConnectionPath) error {
	if len(path.TeardownCmd) == 0 {
		return nil
	}
	d.log.Info("running teardown command", "path", path.Name, "cmd", strings.Join(path.TeardownCmd, " "))
	if err := d.runCommand(ctx, path.TeardownCmd); err != nil {
		return fmt.Errorf("teardown %s: %w", path.Name, err)
	}
	return nil
}

func (d *ExecDriver) runCommand(ctx context.Context, argv []string) error {
	cctx, cancel := context.WithTimeout(ctx, d.commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after %s", argv[0], d.commandTimeout)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, firstLine(msg))
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
