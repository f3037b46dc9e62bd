// Package events publishes contest lifecycle events for downstream consumers
// such as notifications and analytics.
package events

import (
	"context"
	"time"

	"matchmaking-service/models"
)

// Routing keys.
const (
	ContestCreated   = "contest.created"
	ContestCancelled = "contest.cancelled"
	ContestSettled   = "contest.settled"
)

// ContestEvent is the message body for every contest event.
type ContestEvent struct {
	Type        string         `json:"type"`
	ContestID   string         `json:"contest_id"`
	Area        string         `json:"area,omitempty"`
	PlayerOneID string         `json:"player_one_id"`
	PlayerTwoID string         `json:"player_two_id"`
	CompatScore int            `json:"compat_score,omitempty"`
	Score       map[string]int `json:"score,omitempty"`
	WinnerID    string         `json:"winner_id,omitempty"`
	Ratings     map[string]int `json:"ratings,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// NewContestEvent builds an event of type typ from the current state of c.
func NewContestEvent(typ string, c models.Contest) ContestEvent {
	e := ContestEvent{
		Type:        typ,
		ContestID:   c.ID,
		Area:        c.Area,
		PlayerOneID: c.PlayerOneID,
		PlayerTwoID: c.PlayerTwoID,
		CompatScore: c.CompatScore,
		Score:       c.Score,
		OccurredAt:  time.Now().UTC(),
	}
	if c.WinnerID != nil {
		e.WinnerID = *c.WinnerID
	}
	if c.SettledAt != nil {
		e.OccurredAt = c.SettledAt.UTC()
	}
	return e
}

// Publisher delivers contest events. Publish failures must never undo the
// change that produced the event; callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, e ContestEvent) error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, ContestEvent) error { return nil }
