package matchmaking

import "time"

// Status is the state reported to callers, both for progress snapshots and
// terminal outcomes.
type Status string

const (
	StatusQueued        Status = "queued"
	StatusSearching     Status = "searching"
	StatusMatched       Status = "matched"
	StatusAlreadyActive Status = "already_active"
	StatusNotFound      Status = "not_found"
	StatusTimeout       Status = "timeout"
)

// Terminal reports whether no further observations follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusMatched, StatusAlreadyActive, StatusNotFound, StatusTimeout:
		return true
	}
	return false
}

// Provenance tells which side of a pairing created the contest.
type Provenance string

const (
	MatchedBySelf     Provenance = "self"
	MatchedByOpponent Provenance = "opponent"
)

// Outcome is the terminal result of one FindMatch call.
type Outcome struct {
	Status      Status     `json:"status"`
	ContestID   string     `json:"match_id,omitempty"`
	Score       int        `json:"compat_score,omitempty"`
	WaitSeconds float64    `json:"wait_time"`
	Attempts    int        `json:"attempts"`
	Provenance  Provenance `json:"matched_by,omitempty"`
	Threshold   float64    `json:"threshold_used,omitempty"`
}

// Matched reports whether the outcome carries a contest the player is in.
func (o Outcome) Matched() bool { return o.Status == StatusMatched }

// Observation is a snapshot pushed to an Observer while a search runs. The
// last observation of every search carries the Outcome.
type Observation struct {
	Status      Status    `json:"status"`
	Area        string    `json:"area,omitempty"`
	QueueSize   *int64    `json:"queue_size,omitempty"`
	Attempt     int       `json:"attempt,omitempty"`
	WaitSeconds float64   `json:"wait_time"`
	Threshold   float64   `json:"threshold,omitempty"`
	BestScore   *int      `json:"best_score,omitempty"`
	Candidates  int       `json:"candidates"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Outcome     *Outcome  `json:"-"`
}

// Payload is what gets serialized for delivery: the outcome for terminal
// observations, the snapshot otherwise.
func (o Observation) Payload() any {
	if o.Outcome != nil {
		return o.Outcome
	}
	return o
}

// Observer receives progress snapshots from the engine. Observe is called on
// the engine's goroutine and must not block for long.
type Observer interface {
	Observe(Observation)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Observation)

func (f ObserverFunc) Observe(o Observation) { f(o) }

// Discard drops every observation. The blocking delivery path uses it.
var Discard Observer = ObserverFunc(func(Observation) {})
