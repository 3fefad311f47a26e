package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase identifies one of the four sequential pipeline stages.
type Phase string

const (
	PhaseConnect   Phase = "connect"
	PhaseExtract   Phase = "extract"
	PhaseTransform Phase = "transform"
	PhaseLoad      Phase = "load"
)

type PhaseStatus string

const (
	PhaseSucceeded PhaseStatus = "succeeded"
	PhaseFailed    PhaseStatus = "failed"
	PhaseAborted   PhaseStatus = "aborted"
)

type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Attempt records one try of a phase operation or a connection path.
// Immutable once appended.
type Attempt struct {
	Seq       int           `json:"seq"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	OK        bool          `json:"ok"`
	Kind      FailureKind   `json:"kind,omitempty"`
	Cause     string        `json:"cause,omitempty"`
}

// PhaseResult is the outcome of one pipeline phase. The artifact is
// opaque to everything except the next phase.
type PhaseResult struct {
	Phase    Phase         `json:"phase"`
	Status   PhaseStatus   `json:"status"`
	Attempts []Attempt     `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Artifact Artifact      `json:"-"`
}

// LastAttempt returns the final attempt of the phase, or a zero Attempt
// when none were made.
func (r PhaseResult) LastAttempt() Attempt {
	if len(r.Attempts) == 0 {
		return Attempt{}
	}
	return r.Attempts[len(r.Attempts)-1]
}

// RunReport aggregates one full pipeline run. It holds PhaseResults only
// for phases that were started; finalized exactly once.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Phases    []PhaseResult `json:"phases"`
	Status    RunStatus     `json:"status"`
	ExitCode  int           `json:"exit_code"`
}

func NewRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
}

func (r *RunReport) Append(pr PhaseResult) {
	r.Phases = append(r.Phases, pr)
}

// Finalize stamps the end time, resolves the overall status and derives
// the process exit code. 0 only when every started phase succeeded and
// all four phases ran.
func (r *RunReport) Finalize() {
	r.EndedAt = time.Now().UTC()
	r.Status = RunFailed
	r.ExitCode = 1
	if len(r.Phases) != 4 {
		return
	}
	for _, p := range r.Phases {
		if p.Status != PhaseSucceeded {
			return
		}
	}
	r.Status = RunSucceeded
	r.ExitCode = 0
}

func (r *RunReport) Elapsed() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// PhaseResultFor returns the result of the named phase, if started.
func (r *RunReport) PhaseResultFor(p Phase) (PhaseResult, bool) {
	for _, pr := range r.Phases {
		if pr.Phase == p {
			return pr, true
		}
	}
	return PhaseResult{}, false
}
