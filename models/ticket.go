package models

import "time"

type TicketStatus string

const (
	TicketQueued  TicketStatus = "queued"
	TicketMatched TicketStatus = "matched"
	TicketClosed  TicketStatus = "closed"
)

// Ticket is one player's pending search attempt. At most one row per player
// may be queued at a time; the partial unique index enforces it and is the
// conflict target of the enqueue upsert.
type Ticket struct {
	ID          uint64       `json:"id" gorm:"primaryKey;autoIncrement"`
	PlayerID    string       `json:"player_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_mm_tickets_player_queued,where:status = 'queued'"`
	Area        string       `json:"area" gorm:"type:varchar(32);not null;index:idx_mm_tickets_scan,priority:1"`
	Rating      int          `json:"rating" gorm:"not null"`
	Preferences Preferences  `json:"preferences" gorm:"type:jsonb;serializer:json"`
	Status      TicketStatus `json:"status" gorm:"type:varchar(16);not null;default:'queued';index:idx_mm_tickets_scan,priority:2"`
	CreatedAt   time.Time    `json:"created_at" gorm:"not null;index:idx_mm_tickets_scan,priority:3"`
}

func (Ticket) TableName() string { return "mm_tickets" }
