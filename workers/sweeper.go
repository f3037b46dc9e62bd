package workers

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

type StaleTicketCloser interface {
	SweepStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper closes queued tickets that outlived any search that could own
// them, which happens when a process dies mid-search.
type Sweeper struct {
	tickets StaleTicketCloser
	maxAge  time.Duration
	clock   clockwork.Clock
	log     zerolog.Logger
}

// NewSweeper closes tickets older than searchTimeout plus grace.
func NewSweeper(tickets StaleTicketCloser, searchTimeout, grace time.Duration, clock clockwork.Clock, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		tickets: tickets,
		maxAge:  searchTimeout + grace,
		clock:   clock,
		log:     log.With().Str("component", "sweeper").Logger(),
	}
}

func (w *Sweeper) Run(ctx context.Context) error {
	n, err := w.tickets.SweepStale(ctx, w.clock.Now().Add(-w.maxAge))
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int64("closed", n).Msg("closed stale tickets")
	}
	return nil
}
