package matchmaking

import (
	"context"

	"matchmaking-service/models"
)

// ActiveContest is the slice of an incomplete contest the engine needs.
type ActiveContest struct {
	ID    string
	Score int
}

// ProfileStore looks up the current rating, area and preferences of a player.
// Unknown players yield ErrPlayerNotFound.
type ProfileStore interface {
	Profile(ctx context.Context, playerID string) (Profile, error)
}

// Store is the shared ticket and contest table the engine coordinates
// through. Every method is atomic on its own.
type Store interface {
	// ActiveContest returns the incomplete contest naming playerID, or nil.
	ActiveContest(ctx context.Context, playerID string) (*ActiveContest, error)

	// CountQueued returns how many tickets are queued in area.
	CountQueued(ctx context.Context, area string) (int64, error)

	// UpsertQueued inserts a queued ticket, or refreshes the area, rating,
	// preferences and CreatedAt of the player's existing queued ticket.
	UpsertQueued(ctx context.Context, t models.Ticket) error

	// MarkClosed moves the player's queued ticket to closed. It reports false
	// when there was no queued ticket left to close.
	MarkClosed(ctx context.Context, playerID string) (bool, error)

	// Cycle runs fn in a single transaction. Locks taken through the CycleTx
	// are held until fn returns; a non-nil error rolls everything back.
	Cycle(ctx context.Context, fn func(tx CycleTx) error) error
}

// CycleTx is the store as seen from inside one scan cycle.
type CycleTx interface {
	ActiveContest(playerID string) (*ActiveContest, error)

	// ScanCandidates locks and returns up to limit queued tickets in area,
	// oldest first, excluding excludePlayerID. Tickets locked by another
	// cycle are skipped rather than waited on.
	ScanCandidates(area, excludePlayerID string, limit int) ([]models.Ticket, error)

	CreateContest(c models.Contest) (models.Contest, error)

	// MarkMatched and DeleteQueued only touch tickets that are still queued;
	// a ticket consumed elsewhere is a no-op.
	MarkMatched(ticketID uint64) error
	DeleteQueued(playerID string) error
}
