package models

// Areas a player can queue in. Tickets from different areas never match.
const (
	AreaNorth   = "north"
	AreaSouth   = "south"
	AreaEast    = "east"
	AreaWest    = "west"
	AreaCentral = "central"
)

// DefaultRating is assigned to newly created players.
const DefaultRating = 1200

// Preferences are the self-declared play preferences of a player. They are
// snapshotted onto a ticket at enqueue time.
type Preferences struct {
	PlayingStyle  string `json:"playing_style,omitempty"`  // aggressive | defensive | balanced
	Intensity     string `json:"intensity,omitempty"`      // casual | medium | competitive
	SessionLength string `json:"session_length,omitempty"` // short | medium | long
	Communication *bool  `json:"communication,omitempty"`
}

// DefaultPreferences returns the preferences given to players who declare none.
func DefaultPreferences() Preferences {
	communication := true
	return Preferences{
		PlayingStyle:  "balanced",
		Intensity:     "medium",
		SessionLength: "medium",
		Communication: &communication,
	}
}

// Player is the profile record the matchmaker reads ratings and areas from.
type Player struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Username    string      `json:"username" gorm:"uniqueIndex;not null"`
	Email       string      `json:"email" gorm:"uniqueIndex;not null"`
	Area        string      `json:"area" gorm:"type:varchar(32);index;not null"`
	Rating      int         `json:"rating" gorm:"default:1200;index"`
	Preferences Preferences `json:"preferences" gorm:"type:jsonb;serializer:json"`

	// Lifetime record, updated on settlement
	Wins   int `json:"wins" gorm:"default:0"`
	Losses int `json:"losses" gorm:"default:0"`

	Timestamps
}
