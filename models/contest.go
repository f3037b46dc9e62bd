package models

import "time"

// Contest is a pairing of two players. The matchmaker creates it with
// IsComplete=false; settlement fills in the score, winner and SettledAt.
type Contest struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Area        string `json:"area" gorm:"type:varchar(32);index"`
	PlayerOneID string `json:"player_one_id" gorm:"type:varchar(64);index;not null"`
	PlayerTwoID string `json:"player_two_id" gorm:"type:varchar(64);index;not null"`
	CompatScore int    `json:"compat_score"`
	RatingDiff  int    `json:"rating_diff"`
	IsComplete  bool   `json:"is_complete" gorm:"default:false;index"`

	// Settlement
	Score     map[string]int `json:"score,omitempty" gorm:"type:jsonb;serializer:json"`
	WinnerID  *string        `json:"winner_id,omitempty" gorm:"type:varchar(64)"`
	SettledAt *time.Time     `json:"settled_at,omitempty"`

	Timestamps
}

// Involves reports whether playerID is one of the two participants.
func (c Contest) Involves(playerID string) bool {
	return c.PlayerOneID == playerID || c.PlayerTwoID == playerID
}

// Opponent returns the other participant's id.
func (c Contest) Opponent(playerID string) string {
	if c.PlayerOneID == playerID {
		return c.PlayerTwoID
	}
	return c.PlayerOneID
}
