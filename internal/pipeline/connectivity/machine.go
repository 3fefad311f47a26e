package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
	"github.com/vietddude/sigitm-etl/internal/pipeline/metrics"
)

// Driver is the only way the machine affects real network state. It is
// polymorphic over path type: a direct route probes, a tunnel profile
// also establishes and tears down.
type Driver interface {
	Probe(ctx context.Context, path domain.ConnectionPath) (bool, error)
	Establish(ctx context.Context, path domain.ConnectionPath) error
	Teardown(ctx context.Context, path domain.ConnectionPath) error
}

// Machine walks the ordered path list until one is reachable, caching
// the established state for a TTL. States: unknown -> unreachable |
// established(path).
type Machine struct {
	driver Driver
	paths  []domain.ConnectionPath
	ttl    time.Duration
	log    *slog.Logger

	mu       sync.RWMutex
	state    domain.ConnectivityState
	attempts []domain.Attempt
}

func NewMachine(driver Driver, paths []domain.ConnectionPath, ttl time.Duration, log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		driver: driver,
		paths:  paths,
		ttl:    ttl,
		log:    log,
		state:  domain.ConnectivityState{Status: domain.ConnectivityUnknown},
	}
}

// State returns the current determination without probing.
func (m *Machine) State() domain.ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Attempts returns the per-path attempt history of this run.
func (m *Machine) Attempts() []domain.Attempt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Attempt(nil), m.attempts...)
}

// Invalidate drops the cached state, forcing the next call to re-probe.
func (m *Machine) Invalidate() {
	m.mu.Lock()
	m.state = domain.ConnectivityState{Status: domain.ConnectivityUnknown}
	m.mu.Unlock()
}

// EnsureConnectivity returns the cached established state while its TTL
// holds, otherwise probes the paths in priority order: probe, establish
// if needed, re-probe once, first reachable wins. Exhausting every path
// yields the unreachable state and a retryable error.
func (m *Machine) EnsureConnectivity(ctx context.Context) (domain.ConnectivityState, error) {
	if state, ok := m.cached(); ok {
		m.log.Debug("connectivity cache hit", "path", state.Path, "checked_at", state.CheckedAt)
		return state, nil
	}

	for _, path := range m.paths {
		if ctx.Err() != nil {
			return m.State(), ctx.Err()
		}
		if m.tryPath(ctx, path) {
			state := m.transition(domain.ConnectivityEstablished, path.Name)
			m.log.Info("connectivity established", "path", path.Name)
			return state, nil
		}
	}

	state := m.transition(domain.ConnectivityUnreachable, "")
	m.log.Error("connectivity exhausted", "paths_tried", len(m.paths))
	return state, domain.Retryable(domain.KindAllPathsUnreachable,
		fmt.Errorf("no reachable path among %d candidates", len(m.paths)))
}

// Teardown disconnects the established path, best-effort, and resets the
// state to unknown.
func (m *Machine) Teardown(ctx context.Context) error {
	state := m.State()
	if !state.Established() {
		return nil
	}

	var target *domain.ConnectionPath
	for i := range m.paths {
		if m.paths[i].Name == state.Path {
			target = &m.paths[i]
			break
		}
	}
	m.Invalidate()

	if target == nil || target.Direct() {
		return nil
	}
	if err := m.driver.Teardown(ctx, *target); err != nil {
		m.log.Warn("teardown failed", "path", target.Name, "error", err)
		return fmt.Errorf("teardown %s: %w", target.Name, err)
	}
	m.log.Info("path torn down", "path", target.Name)
	return nil
}

// tryPath runs the probe/establish/re-probe cycle for one path and
// records exactly one Attempt for it.
func (m *Machine) tryPath(ctx context.Context, path domain.ConnectionPath) bool {
	start := time.Now()

	record := func(ok bool, kind domain.FailureKind, cause string) {
		m.mu.Lock()
		m.attempts = append(m.attempts, domain.Attempt{
			Seq:       len(m.attempts) + 1,
			StartedAt: start.UTC(),
			Duration:  time.Since(start),
			OK:        ok,
			Kind:      kind,
			Cause:     cause,
		})
		m.mu.Unlock()

		outcome := "failure"
		if ok {
			outcome = "success"
		}
		metrics.PathAttempts.WithLabelValues(path.Name, outcome).Inc()
	}

	reachable, err := m.driver.Probe(ctx, path)
	if err != nil {
		m.log.Warn("probe error", "path", path.Name, "error", err)
		record(false, domain.KindDriverError, err.Error())
		return false
	}
	if reachable {
		record(true, "", "")
		return true
	}

	if path.Direct() {
		m.log.Debug("path unreachable", "path", path.Name)
		record(false, domain.KindPathUnreachable, "probe failed")
		return false
	}

	m.log.Info("establishing path", "path", path.Name)
	if err := m.driver.Establish(ctx, path); err != nil {
		m.log.Warn("establish failed", "path", path.Name, "error", err)
		record(false, domain.KindDriverError, err.Error())
		return false
	}

	reachable, err = m.driver.Probe(ctx, path)
	if err != nil {
		record(false, domain.KindDriverError, err.Error())
		return false
	}
	if !reachable {
		m.log.Warn("path unreachable after establish", "path", path.Name)
		record(false, domain.KindPathUnreachable, "probe failed after establish")
		return false
	}

	record(true, "", "")
	return true
}

func (m *Machine) cached() (domain.ConnectivityState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.Established() && m.ttl > 0 && time.Since(m.state.CheckedAt) < m.ttl {
		return m.state, true
	}
	return domain.ConnectivityState{}, false
}

func (m *Machine) transition(status domain.ConnectivityStatus, path string) domain.ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = domain.ConnectivityState{
		Status:    status,
		Path:      path,
		CheckedAt: time.Now(),
	}
	return m.state
}
