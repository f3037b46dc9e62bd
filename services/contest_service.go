package services

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"matchmaking-service/events"
	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
	"matchmaking-service/store"
)

// ContestStore is implemented by store.ContestStore.
type ContestStore interface {
	Get(ctx context.Context, id string) (models.Contest, error)
	Start(ctx context.Context, playerOneID, playerTwoID string) (models.Contest, error)
	Cancel(ctx context.Context, id string) (models.Contest, error)
	Finish(ctx context.Context, id string, pointsOne, pointsTwo int) (store.Settlement, error)
}

// ProfileInvalidator drops cached profiles after their ratings changed.
type ProfileInvalidator interface {
	Invalidate(ctx context.Context, playerIDs ...string) error
}

// ContestService handles contests after they are created: direct starts,
// cancellation and settlement.
type ContestService struct {
	Contests ContestStore
	Profiles ProfileInvalidator
	Events   events.Publisher
	log      zerolog.Logger
}

func NewContestService(contests ContestStore, profiles ProfileInvalidator, publisher events.Publisher, log zerolog.Logger) *ContestService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &ContestService{
		Contests: contests,
		Profiles: profiles,
		Events:   publisher,
		log:      log.With().Str("component", "contest_service").Logger(),
	}
}

// PublishCreated announces a contest the matchmaker committed.
func (s *ContestService) PublishCreated(ctx context.Context, c models.Contest) {
	s.publish(ctx, events.NewContestEvent(events.ContestCreated, c))
}

func (s *ContestService) publish(ctx context.Context, e events.ContestEvent) {
	if err := s.Events.Publish(ctx, e); err != nil {
		s.log.Warn().Err(err).Str("type", e.Type).Str("contest_id", e.ContestID).Msg("failed to publish event")
	}
}

func (s *ContestService) invalidate(ctx context.Context, ids ...string) {
	if s.Profiles == nil {
		return
	}
	if err := s.Profiles.Invalidate(ctx, ids...); err != nil {
		s.log.Warn().Err(err).Strs("player_ids", ids).Msg("failed to invalidate cached profiles")
	}
}

// contestError maps store errors to HTTP errors.
func contestError(err error) error {
	switch {
	case errors.Is(err, store.ErrContestNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Match not found")
	case errors.Is(err, store.ErrContestComplete):
		return fiber.NewError(fiber.StatusBadRequest, "Match already completed")
	case errors.Is(err, matchmaking.ErrPlayerNotFound):
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	case errors.Is(err, store.ErrSamePlayer), errors.Is(err, store.ErrDrawNotSupported):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return err
}

type startRequest struct {
	UserOneID string `json:"user_one_id"`
	UserTwoID string `json:"user_two_id"`
}

func (s *ContestService) StartMatch(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	one, two := strings.TrimSpace(req.UserOneID), strings.TrimSpace(req.UserTwoID)
	if one == "" || two == "" {
		return fiber.NewError(fiber.StatusBadRequest, "user_one_id and user_two_id are required")
	}

	contest, err := s.Contests.Start(c.UserContext(), one, two)
	if err != nil {
		return contestError(err)
	}
	s.publish(c.UserContext(), events.NewContestEvent(events.ContestCreated, contest))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Match started",
		"match_id": contest.ID,
	})
}

func (s *ContestService) GetMatch(c *fiber.Ctx) error {
	contest, err := s.Contests.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return contestError(err)
	}
	return c.JSON(contest)
}

func (s *ContestService) CancelMatch(c *fiber.Ctx) error {
	contest, err := s.Contests.Cancel(c.UserContext(), c.Params("id"))
	if err != nil {
		return contestError(err)
	}
	s.publish(c.UserContext(), events.NewContestEvent(events.ContestCancelled, contest))
	return c.JSON(fiber.Map{
		"message":  "Match cancelled",
		"match_id": contest.ID,
	})
}

type finishRequest struct {
	MatchID string `json:"match_id"`
	Score   []int  `json:"score"`
}

// FinishMatch settles a contest. score holds the points of player one and
// player two, in that order.
func (s *ContestService) FinishMatch(c *fiber.Ctx) error {
	var req finishRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}
	if req.MatchID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "match_id is required")
	}
	if len(req.Score) != 2 || req.Score[0] < 0 || req.Score[1] < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "score must be two non-negative numbers")
	}

	res, err := s.Contests.Finish(c.UserContext(), req.MatchID, req.Score[0], req.Score[1])
	if err != nil {
		return contestError(err)
	}
	ctx := c.UserContext()
	s.invalidate(ctx, res.Winner.ID, res.Loser.ID)

	e := events.NewContestEvent(events.ContestSettled, res.Contest)
	e.Ratings = map[string]int{res.Winner.ID: res.Winner.Rating, res.Loser.ID: res.Loser.Rating}
	s.publish(ctx, e)

	return c.JSON(fiber.Map{
		"message":   "Match finished",
		"match_id":  res.Contest.ID,
		"winner_id": res.Winner.ID,
		"score":     res.Contest.Score,
		"ratings": fiber.Map{
			res.Winner.ID: fiber.Map{"old": res.OldRating[res.Winner.ID], "new": res.Winner.Rating},
			res.Loser.ID:  fiber.Map{"old": res.OldRating[res.Loser.ID], "new": res.Loser.Rating},
		},
	})
}
