package matchmaking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"matchmaking-service/models"
)

func TestRatingGapScorer(t *testing.T) {
	testCases := []struct {
		name string
		a, b int
		want int
	}{
		{name: "equal ratings", a: 1500, b: 1500, want: 10},
		{name: "inside one band", a: 1500, b: 1599, want: 10},
		{name: "one band", a: 1500, b: 1600, want: 9},
		{name: "five bands", a: 1500, b: 2000, want: 5},
		{name: "gap below the floor", a: 800, b: 2800, want: MinScore},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := RatingGapScorer{}
			assert.Equal(t, tc.want, s.Score(Profile{Rating: tc.a}, Profile{Rating: tc.b}))
		})
	}
}

func TestRatingGapScorer_Properties(t *testing.T) {
	s := RatingGapScorer{Band: 50}
	prev := MaxScore
	for gap := 0; gap <= 1000; gap += 10 {
		a, b := Profile{Rating: 1200}, Profile{Rating: 1200 + gap}
		got := s.Score(a, b)
		assert.Equal(t, got, s.Score(b, a), "symmetric at gap %d", gap)
		assert.GreaterOrEqual(t, got, MinScore)
		assert.LessOrEqual(t, got, MaxScore)
		assert.LessOrEqual(t, got, prev, "non-increasing at gap %d", gap)
		prev = got
	}
}

func TestPickBest(t *testing.T) {
	me := Profile{PlayerID: "me", Rating: 1500}

	idx, _ := pickBest(RatingGapScorer{}, me, nil)
	assert.Equal(t, -1, idx)

	candidates := []models.Ticket{
		{PlayerID: "far", Rating: 1900},
		{PlayerID: "first-close", Rating: 1450},
		{PlayerID: "second-close", Rating: 1550},
	}
	idx, score := pickBest(RatingGapScorer{}, me, candidates)
	assert.Equal(t, 1, idx, "ties keep the earliest candidate")
	assert.Equal(t, 10, score)

	custom := ScorerFunc(func(_, b Profile) int {
		if b.PlayerID == "far" {
			return MaxScore
		}
		return MinScore
	})
	idx, score = pickBest(custom, me, candidates)
	assert.Equal(t, 0, idx)
	assert.Equal(t, MaxScore, score)
}
