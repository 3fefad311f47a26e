package portal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/vietddude/sigitm-etl/internal/core/domain"
)

// Config holds the portal session settings. Credentials come in through
// environment expansion in the YAML, never inline.
type Config struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	QueryName string `yaml:"query_name"`
	WorkDir   string `yaml:"work_dir"`

	HTTPTimeout          time.Duration `yaml:"http_timeout"`
	ExportPollInterval   time.Duration `yaml:"export_poll_interval"`
	ExportTimeout        time.Duration `yaml:"export_timeout"`
	MaxChallengeAttempts int           `yaml:"max_challenge_attempts"`

	Solver SolverConfig `yaml:"solver"`
}

func (c Config) normalized() Config {
	if c.QueryName == "" {
		c.QueryName = "CONSULTA_LOTE4_FECHADAS"
	}
	if c.WorkDir == "" {
		c.WorkDir = os.TempDir()
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 30 * time.Second
	}
	if c.ExportPollInterval <= 0 {
		c.ExportPollInterval = 3 * time.Second
	}
	if c.ExportTimeout <= 0 {
		c.ExportTimeout = 120 * time.Second
	}
	if c.MaxChallengeAttempts <= 0 {
		c.MaxChallengeAttempts = 5
	}
	return c
}

// Client drives the case-management portal's HTTP surface: session
// login behind an image challenge, saved-query execution, export
// download.
type Client struct {
	cfg        Config
	httpClient *http.Client
	solver     ChallengeSolver
	log        *slog.Logger

	// timeFormat is the date layout the portal expects in query filters
	// (day first, two-digit year).
	timeFormat string

	// lastExec remembers the in-flight remote execution so Cleanup can
	// cancel it after a failed attempt.
	lastExec execState
}

// ChallengeSolver resolves one image challenge into its text solution.
type ChallengeSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

func NewClient(cfg Config, solver ChallengeSolver, log *slog.Logger) (*Client, error) {
	cfg = cfg.normalized()
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("portal base_url is required")
	}
	if log == nil {
		log = slog.Default()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
			Jar:     jar,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		solver:     solver,
		log:        log,
		timeFormat: "02/01/06 15:04",
	}, nil
}

// login authenticates the session. The portal gates the form behind an
// image challenge; a wrong solution can be retried, bad credentials
// cannot fix themselves but stay retryable for the phase.
func (c *Client) login(ctx context.Context) error {
	for attempt := 1; attempt <= c.cfg.MaxChallengeAttempts; attempt++ {
		image, err := c.fetchChallenge(ctx)
		if err != nil {
			return err
		}

		solution, err := c.solver.Solve(ctx, image)
		if err != nil {
			c.log.Warn("challenge solve failed", "attempt", attempt, "error", err)
			continue
		}

		ok, err := c.submitLogin(ctx, solution)
		if err != nil {
			return err
		}
		if ok {
			c.log.Info("portal session established", "user", c.cfg.Username, "challenge_attempts", attempt)
			return nil
		}
		c.log.Warn("challenge rejected by portal", "attempt", attempt)
	}

	return domain.Retryable(domain.KindChallengeResolutionFailure,
		fmt.Errorf("challenge unsolved after %d attempts", c.cfg.MaxChallengeAttempts))
}

func (c *Client) fetchChallenge(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/captcha"), nil)
	if err != nil {
		return nil, fmt.Errorf("create challenge request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch challenge: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch challenge: http %d", resp.StatusCode)
	}

	image, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read challenge image: %w", err)
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("empty challenge image")
	}
	return image, nil
}

// submitLogin posts the credentials. Returns false when the portal
// rejected the challenge solution specifically.
func (c *Client) submitLogin(ctx context.Context, solution string) (bool, error) {
	form := url.Values{}
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)
	form.Set("captcha", solution)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/login"), strings.NewReader(form.Encode()))
	if err != nil {
		return false, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusUnprocessableEntity:
		// wrong challenge solution, worth another solve
		return false, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return false, domain.Retryable(domain.KindAuthenticationFailure,
			fmt.Errorf("portal rejected credentials for %s (http %d)", c.cfg.Username, resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("login: http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}
