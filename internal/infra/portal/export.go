package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// ExportArtifact references the downloaded, verified export file.
type ExportArtifact struct {
	path string
	size int64
}

func (a *ExportArtifact) Ref() string { return filepath.Base(a.path) }

func (a *ExportArtifact) Path() string { return a.path }

func (a *ExportArtifact) Size() int64 { return a.size }

func (a *ExportArtifact) Discard() error {
	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", a.path, err)
	}
	return nil
}

// execState tracks the remote execution for best-effort cleanup.
type execState struct {
	mu sync.Mutex
	id string
}

func (s *execState) set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *execState) take() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.id
	s.id = ""
	return id
}

// Run performs one full extraction: fresh login, saved-query lookup,
// execution over the closed-date window, completion poll, download and
// integrity verification. The returned artifact owns the file on disk.
func (c *Client) Run(ctx context.Context, params domain.QueryParams) (domain.Artifact, error) {
	c.log.Info("extraction started",
		"query", c.cfg.QueryName,
		"from", params.From.Format(c.timeFormat),
		"to", params.To.Format(c.timeFormat),
		"path", params.Path,
	)

	if err := c.login(ctx); err != nil {
		return nil, err
	}

	queryID, err := c.resolveQuery(ctx)
	if err != nil {
		return nil, err
	}

	execID, err := c.execute(ctx, queryID, params)
	if err != nil {
		return nil, err
	}
	c.lastExec.set(execID)

	if err := c.awaitCompletion(ctx, execID); err != nil {
		return nil, err
	}

	path, size, err := c.download(ctx, execID, params.To)
	if err != nil {
		return nil, err
	}
	c.lastExec.set("")

	if err := c.verify(path, size); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	c.log.Info("export downloaded", "file", filepath.Base(path), "bytes", size)
	return &ExportArtifact{path: path, size: size}, nil
}

// Cleanup cancels a leftover remote execution, if any.
func (c *Client) Cleanup(ctx context.Context) error {
	execID := c.lastExec.take()
	if execID == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.endpoint("/executions/"+execID), nil)
	if err != nil {
		return fmt.Errorf("create cancel request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cancel execution %s: %w", execID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("cancel execution %s: http %d", execID, resp.StatusCode)
	}
	c.log.Info("remote execution cancelled", "execution_id", execID)
	return nil
}

// resolveQuery looks up the saved query by its configured name. An
// unknown name cannot be retried into existence.
func (c *Client) resolveQuery(ctx context.Context) (string, error) {
	q := url.Values{}
	q.Set("name", c.cfg.QueryName)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/queries?"+q.Encode()), nil)
	if err != nil {
		return "", fmt.Errorf("create query lookup: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("query lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return "", domain.Fatal(domain.KindUnknownQueryTarget,
			fmt.Errorf("saved query %q does not exist", c.cfg.QueryName))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query lookup: http %d", resp.StatusCode)
	}

	var payload struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode query lookup: %w", err)
	}
	if payload.ID == "" {
		return "", domain.Fatal(domain.KindUnknownQueryTarget,
			fmt.Errorf("saved query %q resolved to no id", c.cfg.QueryName))
	}
	return payload.ID, nil
}

func (c *Client) execute(ctx context.Context, queryID string, params domain.QueryParams) (string, error) {
	body, err := json.Marshal(map[string]string{
		"closed_from": params.From.Format(c.timeFormat),
		"closed_to":   params.To.Format(c.timeFormat),
	})
	if err != nil {
		return "", fmt.Errorf("marshal execution request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.endpoint("/queries/"+queryID+"/run"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create execution request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("execute query: http %d", resp.StatusCode)
	}

	var payload struct {
		ExecutionID string `json:"execution_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode execution response: %w", err)
	}
	if payload.ExecutionID == "" {
		return "", fmt.Errorf("portal returned no execution id")
	}
	return payload.ExecutionID, nil
}

// awaitCompletion polls the execution until it completes or the export
// window closes.
func (c *Client) awaitCompletion(ctx context.Context, execID string) error {
	deadline := time.Now().Add(c.cfg.ExportTimeout)
	for {
		state, err := c.executionState(ctx, execID)
		if err != nil {
			return err
		}
		switch state {
		case "complete":
			return nil
		case "failed":
			return fmt.Errorf("execution %s failed remotely", execID)
		}

		if time.Now().After(deadline) {
			return domain.Retryable(domain.KindExportTimeout,
				fmt.Errorf("execution %s still %s after %s", execID, state, c.cfg.ExportTimeout))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ExportPollInterval):
		}
	}
}

func (c *Client) executionState(ctx context.Context, execID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/executions/"+execID+"/status"), nil)
	if err != nil {
		return "", fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execution status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("execution status: http %d", resp.StatusCode)
	}

	var payload struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode status: %w", err)
	}
	return payload.State, nil
}

func (c *Client) download(ctx context.Context, execID string, cutoff time.Time) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/executions/"+execID+"/export"), nil)
	if err != nil {
		return "", 0, fmt.Errorf("create download request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download export: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("download export: http %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.cfg.WorkDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create work dir: %w", err)
	}

	name := fmt.Sprintf("fechadas_%s_%s.xlsx", cutoff.Format("20060102"), time.Now().Format("150405"))
	path := filepath.Join(c.cfg.WorkDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create export file: %w", err)
	}
	size, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", 0, fmt.Errorf("write export file: %w", err)
	}
	return path, size, nil
}

// verify checks the download is a non-empty workbook that actually
// opens. Anything else is an integrity failure worth a fresh attempt.
func (c *Client) verify(path string, size int64) error {
	if size <= 0 {
		return domain.Retryable(domain.KindIntegrityCheckFailure,
			fmt.Errorf("export file %s is empty", filepath.Base(path)))
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Retryable(domain.KindIntegrityCheckFailure,
			fmt.Errorf("export file does not open as a workbook: %w", err))
	}
	defer func() { _ = wb.Close() }()

	if len(wb.GetSheetList()) == 0 {
		return domain.Retryable(domain.KindIntegrityCheckFailure,
			fmt.Errorf("export workbook has no sheets"))
	}
	return nil
}
