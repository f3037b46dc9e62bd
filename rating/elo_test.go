package rating

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 1e-9)
	assert.InDelta(t, 0.909, ExpectedScore(1800, 1400), 1e-3)
	assert.InDelta(t, 1.0, ExpectedScore(1800, 1400)+ExpectedScore(1400, 1800), 1e-9)
}

func TestUpdate(t *testing.T) {
	testCases := []struct {
		name  string
		a, b  int
		aWon  bool
		wantA int
		wantB int
	}{
		{name: "equal ratings, a wins", a: 1500, b: 1500, aWon: true, wantA: 1516, wantB: 1484},
		{name: "equal ratings, b wins", a: 1500, b: 1500, aWon: false, wantA: 1484, wantB: 1516},
		{name: "favourite wins", a: 1800, b: 1400, aWon: true, wantA: 1803, wantB: 1397},
		{name: "upset", a: 1400, b: 1800, aWon: true, wantA: 1429, wantB: 1771},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			gotA, gotB := NewElo().Update(tc.a, tc.b, tc.aWon)
			assert.Equal(t, tc.wantA, gotA)
			assert.Equal(t, tc.wantB, gotB)
		})
	}
}

func TestUpdate_ZeroKFallsBackToDefault(t *testing.T) {
	a, b := Elo{}.Update(1500, 1500, true)
	assert.Equal(t, 1516, a)
	assert.Equal(t, 1484, b)
}
