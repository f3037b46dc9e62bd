package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
	"matchmaking-service/rating"
)

var (
	ErrContestNotFound  = errors.New("contest not found")
	ErrContestComplete  = errors.New("contest already completed")
	ErrSamePlayer       = errors.New("a player cannot be paired with themselves")
	ErrDrawNotSupported = errors.New("contests cannot end in a draw")
)

// Settlement is the result of a finished contest.
type Settlement struct {
	Contest   models.Contest
	Winner    models.Player
	Loser     models.Player
	OldRating map[string]int
}

// ContestStore manages contests outside the matchmaker: direct pairings,
// cancellation and settlement.
type ContestStore struct {
	DB  *gorm.DB
	Elo rating.Elo
}

func NewContestStore(db *gorm.DB, elo rating.Elo) *ContestStore {
	return &ContestStore{DB: db, Elo: elo}
}

func (s *ContestStore) Get(ctx context.Context, id string) (models.Contest, error) {
	var c models.Contest
	err := s.DB.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Contest{}, ErrContestNotFound
	}
	if err != nil {
		return models.Contest{}, eris.Wrapf(err, "failed to load contest %s", id)
	}
	return c, nil
}

// Start pairs two players directly, bypassing the queue.
func (s *ContestStore) Start(ctx context.Context, playerOneID, playerTwoID string) (models.Contest, error) {
	if playerOneID == playerTwoID {
		return models.Contest{}, ErrSamePlayer
	}
	var contest models.Contest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		one, err := loadPlayer(tx, playerOneID)
		if err != nil {
			return err
		}
		two, err := loadPlayer(tx, playerTwoID)
		if err != nil {
			return err
		}
		contest = models.Contest{
			ID:          uuid.NewString(),
			Area:        one.Area,
			PlayerOneID: one.ID,
			PlayerTwoID: two.ID,
			RatingDiff:  one.Rating - two.Rating,
			Score:       map[string]int{one.ID: 0, two.ID: 0},
		}
		return eris.Wrap(tx.Create(&contest).Error, "failed to insert contest")
	})
	if err != nil {
		return models.Contest{}, err
	}
	return contest, nil
}

// Cancel completes a contest with a zero score and no winner. Ratings are
// left untouched.
func (s *ContestStore) Cancel(ctx context.Context, id string) (models.Contest, error) {
	var contest models.Contest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		contest, err = lockOpenContest(tx, id)
		if err != nil {
			return err
		}
		now := time.Now()
		contest.IsComplete = true
		contest.Score = map[string]int{contest.PlayerOneID: 0, contest.PlayerTwoID: 0}
		contest.WinnerID = nil
		contest.SettledAt = &now
		return eris.Wrap(tx.Save(&contest).Error, "failed to cancel contest")
	})
	if err != nil {
		return models.Contest{}, err
	}
	return contest, nil
}

// Finish settles a contest from the two players' points, in PlayerOne,
// PlayerTwo order, and applies the rating update to both players in the same
// transaction.
func (s *ContestStore) Finish(ctx context.Context, id string, pointsOne, pointsTwo int) (Settlement, error) {
	if pointsOne == pointsTwo {
		return Settlement{}, ErrDrawNotSupported
	}
	var out Settlement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contest, err := lockOpenContest(tx, id)
		if err != nil {
			return err
		}
		one, err := loadPlayer(tx.Clauses(clause.Locking{Strength: "UPDATE"}), contest.PlayerOneID)
		if err != nil {
			return err
		}
		two, err := loadPlayer(tx.Clauses(clause.Locking{Strength: "UPDATE"}), contest.PlayerTwoID)
		if err != nil {
			return err
		}

		oneWon := pointsOne > pointsTwo
		out.OldRating = map[string]int{one.ID: one.Rating, two.ID: two.Rating}
		one.Rating, two.Rating = s.Elo.Update(one.Rating, two.Rating, oneWon)
		if oneWon {
			one.Wins++
			two.Losses++
			out.Winner, out.Loser = one, two
		} else {
			two.Wins++
			one.Losses++
			out.Winner, out.Loser = two, one
		}
		for _, p := range []models.Player{one, two} {
			err := tx.Model(&models.Player{}).Where("id = ?", p.ID).Updates(map[string]any{
				"rating": p.Rating,
				"wins":   p.Wins,
				"losses": p.Losses,
			}).Error
			if err != nil {
				return eris.Wrapf(err, "failed to update player %s", p.ID)
			}
		}

		now := time.Now()
		winnerID := out.Winner.ID
		contest.IsComplete = true
		contest.Score = map[string]int{one.ID: pointsOne, two.ID: pointsTwo}
		contest.WinnerID = &winnerID
		contest.SettledAt = &now
		if err := tx.Save(&contest).Error; err != nil {
			return eris.Wrap(err, "failed to settle contest")
		}
		out.Contest = contest
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	return out, nil
}

func lockOpenContest(tx *gorm.DB, id string) (models.Contest, error) {
	var c models.Contest
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Contest{}, ErrContestNotFound
	}
	if err != nil {
		return models.Contest{}, eris.Wrapf(err, "failed to load contest %s", id)
	}
	if c.IsComplete {
		return models.Contest{}, ErrContestComplete
	}
	return c, nil
}

func loadPlayer(tx *gorm.DB, id string) (models.Player, error) {
	var p models.Player
	err := tx.First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Player{}, eris.Wrapf(matchmaking.ErrPlayerNotFound, "player %s", id)
	}
	if err != nil {
		return models.Player{}, eris.Wrapf(err, "failed to load player %s", id)
	}
	return p, nil
}
