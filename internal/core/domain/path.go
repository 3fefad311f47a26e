package domain

import "time"

// ConnectionPath is one candidate network route in the fixed priority
// list. A path without an establish command is probe-only (the direct
// corporate route).
type ConnectionPath struct {
	Name         string
	ProbeAddr    string
	ProbeTimeout time.Duration
	EstablishCmd []string
	TeardownCmd  []string
}

func (p ConnectionPath) Direct() bool {
	return len(p.EstablishCmd) == 0
}

type ConnectivityStatus string

const (
	ConnectivityUnknown     ConnectivityStatus = "unknown"
	ConnectivityUnreachable ConnectivityStatus = "unreachable"
	ConnectivityEstablished ConnectivityStatus = "established"
)

// ConnectivityState is the state machine's current determination. Owned
// by the machine, read everywhere else through its accessor.
type ConnectivityState struct {
	Status    ConnectivityStatus `json:"status"`
	Path      string             `json:"path,omitempty"`
	CheckedAt time.Time          `json:"checked_at"`
}

func (s ConnectivityState) Established() bool {
	return s.Status == ConnectivityEstablished
}
