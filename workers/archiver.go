package workers

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"matchmaking-service/models"
)

type ClosedTicketStore interface {
	ClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error)
	DeleteClosed(ctx context.Context, ids []uint64) (int64, error)
}

type TicketArchive interface {
	PutTickets(ctx context.Context, tickets []models.Ticket, at time.Time) (string, error)
}

// Archiver moves closed tickets older than the retention window into the
// archive, batch by batch. A batch is deleted only after its upload succeeded.
type Archiver struct {
	tickets   ClosedTicketStore
	archive   TicketArchive
	retention time.Duration
	batchSize int
	clock     clockwork.Clock
	log       zerolog.Logger
}

func NewArchiver(tickets ClosedTicketStore, archive TicketArchive, retention time.Duration, batchSize int, clock clockwork.Clock, log zerolog.Logger) *Archiver {
	return &Archiver{
		tickets:   tickets,
		archive:   archive,
		retention: retention,
		batchSize: batchSize,
		clock:     clock,
		log:       log.With().Str("component", "archiver").Logger(),
	}
}

func (w *Archiver) Run(ctx context.Context) error {
	now := w.clock.Now()
	cutoff := now.Add(-w.retention)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := w.tickets.ClosedBefore(ctx, cutoff, w.batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		key, err := w.archive.PutTickets(ctx, batch, now)
		if err != nil {
			return err
		}
		ids := make([]uint64, len(batch))
		for i, t := range batch {
			ids[i] = t.ID
		}
		deleted, err := w.tickets.DeleteClosed(ctx, ids)
		if err != nil {
			return eris.Wrapf(err, "archived %s but failed to prune", key)
		}
		w.log.Info().Str("key", key).Int64("tickets", deleted).Msg("archived closed tickets")

		if len(batch) < w.batchSize {
			return nil
		}
	}
}
