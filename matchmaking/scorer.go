package matchmaking

import "matchmaking-service/models"

// Score bounds. MaxScore is a perfect pairing, MinScore the worst acceptable.
const (
	MinScore = 1
	MaxScore = 10
)

// DefaultRatingBand is the rating gap that costs one compatibility point.
const DefaultRatingBand = 100

// Profile is the snapshot of a player the engine queues and scores with.
type Profile struct {
	PlayerID    string
	Area        string
	Rating      int
	Preferences models.Preferences
}

// Scorer rates two players as opponents. Implementations must be symmetric,
// stay within [MinScore, MaxScore] and never increase as the rating gap grows.
type Scorer interface {
	Score(a, b Profile) int
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b Profile) int

func (f ScorerFunc) Score(a, b Profile) int { return f(a, b) }

// RatingGapScorer loses one point per Band of rating difference.
// Preferences carry no weight until a product decision says otherwise.
type RatingGapScorer struct {
	Band int
}

func (s RatingGapScorer) Score(a, b Profile) int {
	band := s.Band
	if band <= 0 {
		band = DefaultRatingBand
	}
	gap := a.Rating - b.Rating
	if gap < 0 {
		gap = -gap
	}
	return ClampScore(MaxScore - gap/band)
}

// ClampScore forces s into [MinScore, MaxScore].
func ClampScore(s int) int {
	if s < MinScore {
		return MinScore
	}
	if s > MaxScore {
		return MaxScore
	}
	return s
}

func candidateProfile(t models.Ticket) Profile {
	return Profile{
		PlayerID:    t.PlayerID,
		Area:        t.Area,
		Rating:      t.Rating,
		Preferences: t.Preferences,
	}
}

// pickBest returns the index and score of the highest scoring candidate, or
// -1 when there are none. Ties keep the earliest candidate, and candidates
// arrive oldest first.
func pickBest(scorer Scorer, me Profile, candidates []models.Ticket) (int, int) {
	best, bestScore := -1, 0
	for i, c := range candidates {
		s := scorer.Score(me, candidateProfile(c))
		if best < 0 || s > bestScore {
			best, bestScore = i, s
		}
	}
	return best, bestScore
}
