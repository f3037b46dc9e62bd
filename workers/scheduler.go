// Package workers runs the periodic maintenance jobs of the matchmaker.
package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// Scheduler runs named jobs on fixed intervals. A job never overlaps with
// its own previous run.
type Scheduler struct {
	sched gocron.Scheduler
	log   zerolog.Logger
}

func NewScheduler(clock clockwork.Clock, log zerolog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, eris.Wrap(err, "failed to create scheduler")
	}
	return &Scheduler{sched: sched, log: log.With().Str("component", "workers").Logger()}, nil
}

// Every registers job to run immediately on Start and then every interval.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context) error) error {
	log := s.log.With().Str("job", name).Logger()
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func(ctx context.Context) {
			start := time.Now()
			if err := job(ctx); err != nil {
				log.Error().Err(err).Msg("job failed")
				return
			}
			log.Debug().Dur("took", time.Since(start)).Msg("job done")
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return eris.Wrapf(err, "failed to schedule %s", name)
	}
	log.Info().Dur("interval", interval).Msg("job scheduled")
	return nil
}

func (s *Scheduler) Start() { s.sched.Start() }

// Shutdown stops scheduling and waits for running jobs to return.
func (s *Scheduler) Shutdown() error {
	return eris.Wrap(s.sched.Shutdown(), "scheduler shutdown failed")
}
