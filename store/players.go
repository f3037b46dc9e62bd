package store

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"gorm.io/gorm"

	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
)

var ErrDuplicatePlayer = errors.New("player already exists")

// PlayerStore reads and writes player profiles.
type PlayerStore struct {
	DB *gorm.DB
}

var _ matchmaking.ProfileStore = (*PlayerStore)(nil)

func NewPlayerStore(db *gorm.DB) *PlayerStore {
	return &PlayerStore{DB: db}
}

func (s *PlayerStore) Get(ctx context.Context, id string) (models.Player, error) {
	var p models.Player
	err := s.DB.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Player{}, matchmaking.ErrPlayerNotFound
	}
	if err != nil {
		return models.Player{}, eris.Wrapf(err, "failed to load player %s", id)
	}
	return p, nil
}

// Profile implements matchmaking.ProfileStore.
func (s *PlayerStore) Profile(ctx context.Context, id string) (matchmaking.Profile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return matchmaking.Profile{}, err
	}
	return matchmaking.Profile{
		PlayerID:    p.ID,
		Area:        p.Area,
		Rating:      p.Rating,
		Preferences: p.Preferences,
	}, nil
}

func (s *PlayerStore) Create(ctx context.Context, p models.Player) (models.Player, error) {
	var taken int64
	err := s.DB.WithContext(ctx).Model(&models.Player{}).
		Where("id = ? OR username = ? OR email = ?", p.ID, p.Username, p.Email).
		Count(&taken).Error
	if err != nil {
		return models.Player{}, eris.Wrap(err, "failed to check for existing player")
	}
	if taken > 0 {
		return models.Player{}, ErrDuplicatePlayer
	}
	if err := s.DB.WithContext(ctx).Create(&p).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return models.Player{}, ErrDuplicatePlayer
		}
		return models.Player{}, eris.Wrap(err, "failed to create player")
	}
	return p, nil
}

// Leaderboard returns up to limit players ordered by rating, optionally
// restricted to one area.
func (s *PlayerStore) Leaderboard(ctx context.Context, area string, limit int) ([]models.Player, error) {
	q := s.DB.WithContext(ctx).Model(&models.Player{})
	if area != "" {
		q = q.Where("area = ?", area)
	}
	var players []models.Player
	if err := q.Order("rating DESC").Order("wins DESC").Limit(limit).Find(&players).Error; err != nil {
		return nil, eris.Wrap(err, "failed to load leaderboard")
	}
	return players, nil
}
