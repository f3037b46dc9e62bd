package matchmaking

import (
	"math"
	"time"
)

// Decay is the acceptance threshold schedule. The threshold starts at
// Initial, falls by RatePerSecond for every second a ticket has waited and
// never goes below Minimum.
type Decay struct {
	Initial       float64
	Minimum       float64
	RatePerSecond float64
}

// Threshold returns the minimum acceptable score for a ticket that has been
// queued for wait.
func (d Decay) Threshold(wait time.Duration) float64 {
	if wait < 0 {
		wait = 0
	}
	return math.Max(d.Minimum, d.Initial-wait.Seconds()*d.RatePerSecond)
}
