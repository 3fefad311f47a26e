package cutoff

import (
	"fmt"
	"time"
)

// Rule computes the closed-date window for a run from the current time:
// To is local midnight shifted back OffsetDays, From is To minus
// WindowDays. Records closed in [From, To) are in scope; To is the
// cutoff boundary handed to the transform phase.
type Rule struct {
	OffsetDays int    `yaml:"offset_days"`
	WindowDays int    `yaml:"window_days"`
	Timezone   string `yaml:"timezone"`
}

type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("[%s .. %s)", w.From.Format("2006-01-02 15:04"), w.To.Format("2006-01-02 15:04"))
}

func (r Rule) normalized() Rule {
	if r.WindowDays < 1 {
		r.WindowDays = 1
	}
	if r.OffsetDays < 0 {
		r.OffsetDays = 0
	}
	if r.Timezone == "" {
		r.Timezone = "America/Sao_Paulo"
	}
	return r
}

// WindowAt resolves the window relative to now. With defaults (offset 0,
// window 1 day) that is yesterday 00:00 through today 00:00 local time.
func (r Rule) WindowAt(now time.Time) (Window, error) {
	r = r.normalized()

	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return Window{}, fmt.Errorf("load timezone %q: %w", r.Timezone, err)
	}

	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	to := midnight.AddDate(0, 0, -r.OffsetDays)
	from := to.AddDate(0, 0, -r.WindowDays)
	return Window{From: from, To: to}, nil
}
