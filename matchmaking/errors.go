package matchmaking

import "errors"

var (
	// ErrInvalidPlayer is returned when FindMatch is called without a player id.
	ErrInvalidPlayer = errors.New("player id is required")

	// ErrPlayerNotFound is returned by a ProfileStore for unknown players.
	ErrPlayerNotFound = errors.New("player not found")

	// ErrContention is returned by a Store when a cycle lost a lock race and
	// was rolled back as a whole. Nothing was applied, so it is safe to retry.
	ErrContention = errors.New("lock contention")
)
