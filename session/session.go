package session

import "time"

type State uint8

const (
	Pending State = iota
	Running
	Succeeded
	Failed
	Aborted
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transitions are allowed from s.
func (s State) Terminal() bool {
	return s == Succeeded || s == Failed || s == Aborted
}

type TriggerSource string

const (
	TriggerDrift     TriggerSource = "drift"
	TriggerScheduled TriggerSource = "scheduled"
	TriggerManual    TriggerSource = "manual"
)

type RoundStatus uint8

const (
	RoundOpen RoundStatus = iota
	RoundClosed
	RoundFailed
)

func (s RoundStatus) String() string {
	switch s {
	case RoundOpen:
		return "Open"
	case RoundClosed:
		return "Closed"
	case RoundFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ClientUpdate is one node's contribution to the open round.
type ClientUpdate struct {
	SessionID  string    `json:"session_id"`
	NodeID     string    `json:"node_id"`
	Round      int       `json:"round"`
	NumSamples int       `json:"num_samples"`
	Delta      []float64 `json:"delta"`
	Metric     float64   `json:"metric"`
	ReceivedAt time.Time `json:"received_at"`
}

// Round numbers are monotonic within a session and start at 1. A retried
// round gets a fresh number; numbers are never reused.
type Round struct {
	Number           int            `json:"number"`
	Status           RoundStatus    `json:"status"`
	Updates          []ClientUpdate `json:"updates,omitempty"`
	AggregatedDelta  []float64      `json:"aggregated_delta,omitempty"`
	AggregatedMetric float64        `json:"aggregated_metric"`
	TotalSamples     int64          `json:"total_samples"`
	OpenedAt         time.Time      `json:"opened_at"`
	ClosedAt         time.Time      `json:"closed_at,omitempty"`
}

type Session struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Cluster      string        `json:"cluster"`
	Trigger      TriggerSource `json:"trigger"`
	State        State         `json:"state"`
	Config       Config        `json:"config"`
	Participants []string      `json:"participants,omitempty"`
	Excluded     []string      `json:"excluded,omitempty"`
	OpenRound    int           `json:"open_round"`
	ClosedRounds int           `json:"closed_rounds"`
	ModelVersion string        `json:"model_version,omitempty"`
	FailureKind  string        `json:"failure_kind,omitempty"`
	FailedRound  int           `json:"failed_round,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	FinishTime   time.Time     `json:"finish_time"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type SessionPage struct {
	Offset   uint64    `json:"offset"`
	Limit    uint64    `json:"limit"`
	Total    uint64    `json:"total"`
	Sessions []Session `json:"sessions"`
}
