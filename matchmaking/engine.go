// Package matchmaking pairs waiting players into head-to-head contests.
//
// Each FindMatch call owns one player's search attempt. It enqueues a ticket
// and then repeatedly scans the player's area for queued opponents, locking
// candidate tickets with skip-locked semantics so two concurrent searches can
// never pick the same opponent. The score a candidate must reach falls the
// longer the ticket has waited. Searches coordinate only through the Store;
// there is no shared in-process state between them.
package matchmaking

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"matchmaking-service/models"
)

// Config tunes the search loop.
type Config struct {
	Decay        Decay
	PollInterval time.Duration
	Timeout      time.Duration
	BatchSize    int
}

// DefaultConfig returns the production defaults: threshold 9.0 decaying by
// 0.05/s down to 3.0, a scan every 2s, give up after 120s, 50 candidates per
// scan.
func DefaultConfig() Config {
	return Config{
		Decay: Decay{
			Initial:       9.0,
			Minimum:       3.0,
			RatePerSecond: 0.05,
		},
		PollInterval: 2 * time.Second,
		Timeout:      120 * time.Second,
		BatchSize:    50,
	}
}

// Validate rejects configurations the loop cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return eris.New("poll interval must be positive")
	case c.Timeout <= 0:
		return eris.New("timeout must be positive")
	case c.BatchSize < 1:
		return eris.New("batch size must be at least 1")
	case c.Decay.RatePerSecond < 0:
		return eris.New("decay rate must not be negative")
	case c.Decay.Minimum > c.Decay.Initial:
		return eris.Errorf("minimum threshold %.2f exceeds initial threshold %.2f", c.Decay.Minimum, c.Decay.Initial)
	}
	return nil
}

// Engine runs search attempts. It is safe for concurrent use; every call to
// FindMatch is independent.
type Engine struct {
	store    Store
	profiles ProfileStore
	scorer   Scorer
	clock    clockwork.Clock
	cfg      Config
	log      zerolog.Logger
	onMatch  func(context.Context, models.Contest)
}

type Option func(*Engine)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithScorer replaces the default RatingGapScorer.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMatchHook registers fn to run after this engine commits a contest. It
// is not called for contests created by another search.
func WithMatchHook(fn func(context.Context, models.Contest)) Option {
	return func(e *Engine) { e.onMatch = fn }
}

func NewEngine(store Store, profiles ProfileStore, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		profiles: profiles,
		scorer:   RatingGapScorer{},
		clock:    clockwork.NewRealClock(),
		cfg:      cfg,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("component", "matchmaking").Logger()
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// search is the in-memory state of one attempt.
type search struct {
	me       Profile
	start    time.Time
	queuedAt time.Time
	attempts int
	log      zerolog.Logger
}

// cycleResult is what one scan cycle found.
type cycleResult struct {
	contestID  string
	contest    models.Contest
	score      int
	provenance Provenance
	candidates int
	bestScore  *int
	committing bool
}

// FindMatch searches for an opponent for playerID until one is found or the
// configured timeout passes. Progress is pushed to obs; the final observation
// carries the returned Outcome.
//
// An error is returned only when the player id is empty, when the ticket
// could not be enqueued, when a contest commit failed, or when ctx ended the
// search early. Store errors in the middle of the loop are logged and the
// loop carries on.
func (e *Engine) FindMatch(ctx context.Context, playerID string, obs Observer) (Outcome, error) {
	if obs == nil {
		obs = Discard
	}
	playerID = strings.TrimSpace(playerID)
	if playerID == "" {
		return Outcome{}, ErrInvalidPlayer
	}
	s := &search{
		start: e.clock.Now(),
		log:   e.log.With().Str("player_id", playerID).Logger(),
	}

	active, err := e.store.ActiveContest(ctx, playerID)
	if err != nil {
		return Outcome{}, eris.Wrap(err, "failed to check for an active contest")
	}
	if active != nil {
		s.log.Info().Str("contest_id", active.ID).Msg("player already in an active contest")
		return e.finish(s, obs, Outcome{Status: StatusAlreadyActive, ContestID: active.ID}), nil
	}

	me, err := e.profiles.Profile(ctx, playerID)
	if errors.Is(err, ErrPlayerNotFound) {
		return e.finish(s, obs, Outcome{Status: StatusNotFound}), nil
	}
	if err != nil {
		return Outcome{}, eris.Wrap(err, "failed to load player profile")
	}
	s.me = me

	if err := e.enqueue(ctx, s, obs); err != nil {
		return Outcome{}, err
	}

	for e.clock.Since(s.start) < e.cfg.Timeout {
		s.attempts++
		threshold := e.cfg.Decay.Threshold(e.clock.Since(s.queuedAt))

		res, err := e.cycle(ctx, s.me, threshold)
		switch {
		case err != nil && res.committing && !errors.Is(err, ErrContention):
			s.log.Error().Err(err).Int("attempt", s.attempts).Msg("contest commit failed")
			// the rollback left our ticket queued; nobody may pair with it now
			e.abandon(ctx, s)
			return Outcome{}, eris.Wrap(err, "failed to commit contest")
		case err != nil:
			s.log.Warn().Err(err).Int("attempt", s.attempts).Msg("search cycle failed, retrying")
			obs.Observe(e.searching(s, threshold, res, err))
		case res.contestID != "":
			s.log.Info().
				Str("contest_id", res.contestID).
				Int("score", res.score).
				Str("matched_by", string(res.provenance)).
				Int("attempt", s.attempts).
				Msg("matched")
			out := Outcome{
				Status:     StatusMatched,
				ContestID:  res.contestID,
				Score:      res.score,
				Provenance: res.provenance,
			}
			if res.provenance == MatchedBySelf {
				out.Threshold = roundTo(threshold, 2)
				if e.onMatch != nil {
					e.onMatch(ctx, res.contest)
				}
			}
			return e.finish(s, obs, out), nil
		default:
			s.log.Debug().
				Int("attempt", s.attempts).
				Int("candidates", res.candidates).
				Float64("threshold", threshold).
				Msg("no acceptable opponent yet")
			obs.Observe(e.searching(s, threshold, res, nil))
		}

		if e.clock.Since(s.start) >= e.cfg.Timeout {
			break
		}
		select {
		case <-ctx.Done():
			e.abandon(ctx, s)
			return Outcome{}, eris.Wrap(ctx.Err(), "search cancelled")
		case <-e.clock.After(e.cfg.PollInterval):
		}
	}

	return e.timeout(ctx, s, obs), nil
}

func (e *Engine) enqueue(ctx context.Context, s *search, obs Observer) error {
	queueSize, countErr := e.store.CountQueued(ctx, s.me.Area)
	if countErr != nil {
		s.log.Warn().Err(countErr).Msg("failed to count queued tickets")
	}

	s.queuedAt = e.clock.Now()
	ticket := models.Ticket{
		PlayerID:    s.me.PlayerID,
		Area:        s.me.Area,
		Rating:      s.me.Rating,
		Preferences: s.me.Preferences,
		Status:      models.TicketQueued,
		CreatedAt:   s.queuedAt,
	}
	if err := e.store.UpsertQueued(ctx, ticket); err != nil {
		return eris.Wrap(err, "failed to enqueue ticket")
	}
	s.log.Info().Str("area", s.me.Area).Int("rating", s.me.Rating).Msg("queued")

	o := Observation{
		Status:    StatusQueued,
		Area:      s.me.Area,
		Timestamp: s.queuedAt,
	}
	if countErr == nil {
		o.QueueSize = &queueSize
	}
	obs.Observe(o)
	return nil
}

// cycle runs one check-scan-commit pass inside a single store transaction.
func (e *Engine) cycle(ctx context.Context, me Profile, threshold float64) (cycleResult, error) {
	var res cycleResult
	err := e.store.Cycle(ctx, func(tx CycleTx) error {
		existing, err := tx.ActiveContest(me.PlayerID)
		if err != nil {
			return eris.Wrap(err, "failed to check for an opponent's contest")
		}
		if existing != nil {
			if err := tx.DeleteQueued(me.PlayerID); err != nil {
				return eris.Wrap(err, "failed to remove own ticket")
			}
			res.contestID, res.score, res.provenance = existing.ID, existing.Score, MatchedByOpponent
			return nil
		}

		candidates, err := tx.ScanCandidates(me.Area, me.PlayerID, e.cfg.BatchSize)
		if err != nil {
			return eris.Wrap(err, "failed to scan candidates")
		}
		res.candidates = len(candidates)

		best, score := pickBest(e.scorer, me, candidates)
		if best < 0 {
			return nil
		}
		res.bestScore = &score
		if float64(score) < threshold {
			return nil
		}

		res.committing = true
		opponent := candidates[best]
		contest, err := tx.CreateContest(models.Contest{
			ID:          uuid.NewString(),
			Area:        me.Area,
			PlayerOneID: me.PlayerID,
			PlayerTwoID: opponent.PlayerID,
			CompatScore: score,
			RatingDiff:  me.Rating - opponent.Rating,
		})
		if err != nil {
			return eris.Wrap(err, "failed to create contest")
		}
		if err := tx.MarkMatched(opponent.ID); err != nil {
			return eris.Wrapf(err, "failed to mark ticket %d matched", opponent.ID)
		}
		if err := tx.DeleteQueued(me.PlayerID); err != nil {
			return eris.Wrap(err, "failed to remove own ticket")
		}
		res.contestID, res.score, res.provenance = contest.ID, score, MatchedBySelf
		res.contest = contest
		return nil
	})
	if err != nil {
		res.contestID = ""
	}
	return res, err
}

// timeout closes the ticket. If the ticket was consumed by an opponent in the
// meantime the contest they created is reported instead.
func (e *Engine) timeout(ctx context.Context, s *search, obs Observer) Outcome {
	closed, err := e.store.MarkClosed(ctx, s.me.PlayerID)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to close ticket after timeout")
	}
	if err == nil && !closed {
		if active, err := e.store.ActiveContest(ctx, s.me.PlayerID); err == nil && active != nil {
			return e.finish(s, obs, Outcome{
				Status:     StatusMatched,
				ContestID:  active.ID,
				Score:      active.Score,
				Provenance: MatchedByOpponent,
			})
		}
	}
	s.log.Info().Int("attempts", s.attempts).Msg("search timed out")
	return e.finish(s, obs, Outcome{Status: StatusTimeout})
}

// abandon closes the ticket of a search whose context ended early.
func (e *Engine) abandon(ctx context.Context, s *search) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := e.store.MarkClosed(closeCtx, s.me.PlayerID); err != nil {
		s.log.Error().Err(err).Msg("failed to close abandoned ticket")
		return
	}
	s.log.Info().Int("attempts", s.attempts).Msg("search abandoned")
}

func (e *Engine) finish(s *search, obs Observer, out Outcome) Outcome {
	out.WaitSeconds = roundTo(e.clock.Since(s.start).Seconds(), 1)
	out.Attempts = s.attempts
	obs.Observe(Observation{
		Status:      out.Status,
		Area:        s.me.Area,
		Attempt:     s.attempts,
		WaitSeconds: out.WaitSeconds,
		Timestamp:   e.clock.Now(),
		Outcome:     &out,
	})
	return out
}

func (e *Engine) searching(s *search, threshold float64, res cycleResult, err error) Observation {
	o := Observation{
		Status:      StatusSearching,
		Area:        s.me.Area,
		Attempt:     s.attempts,
		WaitSeconds: roundTo(e.clock.Since(s.queuedAt).Seconds(), 1),
		Threshold:   roundTo(threshold, 2),
		BestScore:   res.bestScore,
		Candidates:  res.candidates,
		Timestamp:   e.clock.Now(),
	}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
