package retry

import (
	"math"
	"time"
)

// Policy decides whether another attempt may run and how long to wait
// before it. NextDelay takes the 1-based number of the attempt that just
// finished; ok=false signals exhaustion.
type Policy interface {
	NextDelay(attempt int) (delay time.Duration, ok bool)
	MaxAttempts() int
}

// Config holds per-phase backoff settings.
type Config struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// DefaultConfig matches the pipeline-wide defaults: three attempts,
// doubling from two seconds, capped at one minute.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		Multiplier:   2.0,
		MaxDelay:     60 * time.Second,
	}
}

func (c Config) normalized() Config {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 2 * time.Second
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2.0
	}
	if c.MaxDelay < 0 {
		c.MaxDelay = 0
	}
	return c
}

// ExponentialBackoff is a pure exponential backoff policy:
// initial * multiplier^(attempt-1), optionally capped at MaxDelay.
type ExponentialBackoff struct {
	cfg Config
}

func NewExponentialBackoff(cfg Config) *ExponentialBackoff {
	return &ExponentialBackoff{cfg: cfg.normalized()}
}

func (b *ExponentialBackoff) MaxAttempts() int {
	return b.cfg.MaxAttempts
}

// NextDelay returns the wait before attempt+1. Exhausted once attempt
// reaches MaxAttempts. Returned delays are always positive.
func (b *ExponentialBackoff) NextDelay(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		attempt = 1
	}
	if attempt >= b.cfg.MaxAttempts {
		return 0, false
	}

	delay := time.Duration(float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt-1)))
	if delay <= 0 {
		// overflow from a large exponent
		delay = b.cfg.MaxDelay
		if delay <= 0 {
			delay = b.cfg.InitialDelay
		}
	}
	if b.cfg.MaxDelay > 0 && delay > b.cfg.MaxDelay {
		delay = b.cfg.MaxDelay
	}
	return delay, true
}
