package services

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"matchmaking-service/matchmaking"
	"matchmaking-service/middleware"
	"matchmaking-service/models"
	"matchmaking-service/store"
)

// PlayerStore is implemented by store.PlayerStore.
type PlayerStore interface {
	Get(ctx context.Context, id string) (models.Player, error)
	Create(ctx context.Context, p models.Player) (models.Player, error)
	Leaderboard(ctx context.Context, area string, limit int) ([]models.Player, error)
}

const maxLeaderboardLimit = 100

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

var (
	validAreas = map[string]bool{
		models.AreaNorth: true, models.AreaSouth: true, models.AreaEast: true,
		models.AreaWest: true, models.AreaCentral: true,
	}
	validStyles    = map[string]bool{"aggressive": true, "defensive": true, "balanced": true}
	validIntensity = map[string]bool{"casual": true, "medium": true, "competitive": true}
	validLengths   = map[string]bool{"short": true, "medium": true, "long": true}
)

type PlayerService struct {
	Players          PlayerStore
	LeaderboardLimit int
}

func NewPlayerService(players PlayerStore, leaderboardLimit int) *PlayerService {
	return &PlayerService{Players: players, LeaderboardLimit: leaderboardLimit}
}

type createPlayerRequest struct {
	ID          string              `json:"id"`
	Username    string              `json:"username"`
	Email       string              `json:"email"`
	Area        string              `json:"area"`
	Preferences *models.Preferences `json:"preferences"`
}

// NormalizeArea lower-cases and slugifies an area tag, so " North " and
// "NORTH" both become "north".
func NormalizeArea(area string) string {
	return slug.Make(strings.TrimSpace(area))
}

func validatePreferences(p models.Preferences) error {
	if p.PlayingStyle != "" && !validStyles[p.PlayingStyle] {
		return errors.New("playing_style must be one of aggressive, defensive, balanced")
	}
	if p.Intensity != "" && !validIntensity[p.Intensity] {
		return errors.New("intensity must be one of casual, medium, competitive")
	}
	if p.SessionLength != "" && !validLengths[p.SessionLength] {
		return errors.New("session_length must be one of short, medium, long")
	}
	return nil
}

// withDefaults fills every preference the player left empty.
func withDefaults(p *models.Preferences) models.Preferences {
	out := models.DefaultPreferences()
	if p == nil {
		return out
	}
	if p.PlayingStyle != "" {
		out.PlayingStyle = p.PlayingStyle
	}
	if p.Intensity != "" {
		out.Intensity = p.Intensity
	}
	if p.SessionLength != "" {
		out.SessionLength = p.SessionLength
	}
	if p.Communication != nil {
		out.Communication = p.Communication
	}
	return out
}

func (s *PlayerService) CreatePlayer(c *fiber.Ctx) error {
	var req createPlayerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON")
	}

	username := strings.TrimSpace(req.Username)
	if !usernamePattern.MatchString(username) {
		return fiber.NewError(fiber.StatusBadRequest, "username must be 3-20 letters, digits or underscores")
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return fiber.NewError(fiber.StatusBadRequest, "invalid email address")
	}
	area := NormalizeArea(req.Area)
	if !validAreas[area] {
		return fiber.NewError(fiber.StatusBadRequest, "area must be one of north, south, east, west, central")
	}
	if req.Preferences != nil {
		if err := validatePreferences(*req.Preferences); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = middleware.UserID(c)
	}
	if id == "" {
		id = uuid.NewString()
	}

	p, err := s.Players.Create(c.UserContext(), models.Player{
		ID:          id,
		Username:    username,
		Email:       email,
		Area:        area,
		Rating:      models.DefaultRating,
		Preferences: withDefaults(req.Preferences),
	})
	if errors.Is(err, store.ErrDuplicatePlayer) {
		return fiber.NewError(fiber.StatusConflict, "username, email or id already taken")
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(p)
}

func (s *PlayerService) GetPlayer(c *fiber.Ctx) error {
	p, err := s.Players.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, matchmaking.ErrPlayerNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *PlayerService) Leaderboard(c *fiber.Ctx) error {
	area := ""
	if raw := c.Query("area"); raw != "" {
		area = NormalizeArea(raw)
		if !validAreas[area] {
			return fiber.NewError(fiber.StatusBadRequest, "unknown area")
		}
	}
	limit := c.QueryInt("limit", s.LeaderboardLimit)
	if limit < 1 || limit > maxLeaderboardLimit {
		return fiber.NewError(fiber.StatusBadRequest, "limit must be between 1 and 100")
	}

	players, err := s.Players.Leaderboard(c.UserContext(), area, limit)
	if err != nil {
		return err
	}
	type entry struct {
		Rank     int    `json:"rank"`
		ID       string `json:"id"`
		Username string `json:"username"`
		Area     string `json:"area"`
		Rating   int    `json:"rating"`
		Wins     int    `json:"wins"`
		Losses   int    `json:"losses"`
	}
	board := make([]entry, len(players))
	for i, p := range players {
		board[i] = entry{
			Rank:     i + 1,
			ID:       p.ID,
			Username: p.Username,
			Area:     p.Area,
			Rating:   p.Rating,
			Wins:     p.Wins,
			Losses:   p.Losses,
		}
	}
	return c.JSON(fiber.Map{
		"area":        area,
		"leaderboard": board,
	})
}
