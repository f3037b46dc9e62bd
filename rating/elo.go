// Package rating converts a contest outcome into updated player ratings.
package rating

import "math"

// DefaultK is the K-factor applied when none is configured.
const DefaultK = 32

// Elo updates ratings with the standard logistic Elo model.
type Elo struct {
	K float64
}

// NewElo returns an Elo calculator with the default K-factor.
func NewElo() Elo { return Elo{K: DefaultK} }

// ExpectedScore is the probability that a player rated a beats one rated b.
func ExpectedScore(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// Update returns the new ratings of a and b after a contest between them.
// aWon reports whether a won; draws are not modelled.
func (e Elo) Update(a, b int, aWon bool) (int, int) {
	k := e.K
	if k <= 0 {
		k = DefaultK
	}
	sa, sb := 0.0, 1.0
	if aWon {
		sa, sb = 1.0, 0.0
	}
	newA := float64(a) + k*(sa-ExpectedScore(a, b))
	newB := float64(b) + k*(sb-ExpectedScore(b, a))
	return int(math.Round(newA)), int(math.Round(newB))
}
