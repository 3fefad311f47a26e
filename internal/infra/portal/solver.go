package portal

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SolverConfig points at a 2captcha-compatible solving service.
type SolverConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	PollInterval time.Duration `yaml:"poll_interval"`
	SolveTimeout time.Duration `yaml:"solve_timeout"`
}

func (c SolverConfig) normalized() SolverConfig {
	if c.BaseURL == "" {
		c.BaseURL = "https://2captcha.com"
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.SolveTimeout <= 0 {
		c.SolveTimeout = 120 * time.Second
	}
	return c
}

// HTTPSolver submits challenge images to the solving service's two
// endpoints (in.php to enqueue, res.php to poll) and waits for the
// answer.
type HTTPSolver struct {
	cfg        SolverConfig
	httpClient *http.Client
	log        *slog.Logger
}

func NewHTTPSolver(cfg SolverConfig, log *slog.Logger) (*HTTPSolver, error) {
	cfg = cfg.normalized()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("solver api_key is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPSolver{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}, nil
}

// Solve enqueues the image and polls until the service answers or the
// solve window closes.
func (s *HTTPSolver) Solve(ctx context.Context, image []byte) (string, error) {
	id, err := s.submit(ctx, image)
	if err != nil {
		return "", err
	}
	s.log.Debug("challenge submitted", "task_id", id)

	deadline := time.Now().Add(s.cfg.SolveTimeout)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		answer, ready, err := s.poll(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			return answer, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("solver gave no answer within %s", s.cfg.SolveTimeout)
		}
	}
}

func (s *HTTPSolver) submit(ctx context.Context, image []byte) (string, error) {
	form := url.Values{}
	form.Set("key", s.cfg.APIKey)
	form.Set("method", "base64")
	form.Set("body", base64.StdEncoding.EncodeToString(image))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := s.do(req)
	if err != nil {
		return "", fmt.Errorf("submit challenge: %w", err)
	}

	if !strings.HasPrefix(body, "OK|") {
		return "", fmt.Errorf("solver rejected submission: %s", body)
	}
	return strings.TrimPrefix(body, "OK|"), nil
}

func (s *HTTPSolver) poll(ctx context.Context, id string) (string, bool, error) {
	q := url.Values{}
	q.Set("key", s.cfg.APIKey)
	q.Set("action", "get")
	q.Set("id", id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(s.cfg.BaseURL, "/")+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return "", false, fmt.Errorf("create poll request: %w", err)
	}

	body, err := s.do(req)
	if err != nil {
		return "", false, fmt.Errorf("poll solver: %w", err)
	}

	switch {
	case body == "CAPCHA_NOT_READY":
		return "", false, nil
	case strings.HasPrefix(body, "OK|"):
		return strings.TrimPrefix(body, "OK|"), true, nil
	default:
		return "", false, fmt.Errorf("solver error: %s", body)
	}
}

func (s *HTTPSolver) do(req *http.Request) (string, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
