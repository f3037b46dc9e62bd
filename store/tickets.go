package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
)

// queuedOnly is the predicate of the partial unique index on player_id. It is
// inlined rather than bound so PostgreSQL can infer the index for ON CONFLICT.
var queuedOnly = clause.Where{Exprs: []clause.Expression{
	clause.Expr{SQL: "status = 'queued'"},
}}

// TicketStore is the PostgreSQL matchmaking.Store.
type TicketStore struct {
	DB *gorm.DB

	// LockTimeout bounds how long a cycle waits on a row lock it did not
	// skip. Zero leaves the server default.
	LockTimeout time.Duration
}

var _ matchmaking.Store = (*TicketStore)(nil)

func NewTicketStore(db *gorm.DB, lockTimeout time.Duration) *TicketStore {
	return &TicketStore{DB: db, LockTimeout: lockTimeout}
}

func (s *TicketStore) ActiveContest(ctx context.Context, playerID string) (*matchmaking.ActiveContest, error) {
	return activeContest(s.DB.WithContext(ctx), playerID)
}

func (s *TicketStore) CountQueued(ctx context.Context, area string) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.Ticket{}).
		Where("status = ? AND area = ?", models.TicketQueued, area).
		Count(&n).Error
	if err != nil {
		return 0, eris.Wrapf(err, "failed to count queued tickets in %s", area)
	}
	return n, nil
}

func (s *TicketStore) UpsertQueued(ctx context.Context, t models.Ticket) error {
	t.ID = 0
	t.Status = models.TicketQueued
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "player_id"}},
		TargetWhere: queuedOnly,
		DoUpdates: clause.AssignmentColumns([]string{
			"area", "rating", "preferences", "created_at",
		}),
	}).Create(&t).Error
	if err != nil {
		return eris.Wrapf(err, "failed to upsert ticket for %s", t.PlayerID)
	}
	return nil
}

func (s *TicketStore) MarkClosed(ctx context.Context, playerID string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.Ticket{}).
		Where("player_id = ? AND status = ?", playerID, models.TicketQueued).
		Update("status", models.TicketClosed)
	if res.Error != nil {
		return false, eris.Wrapf(res.Error, "failed to close ticket for %s", playerID)
	}
	return res.RowsAffected > 0, nil
}

func (s *TicketStore) Cycle(ctx context.Context, fn func(tx matchmaking.CycleTx) error) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.LockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.LockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return eris.Wrap(err, "failed to set lock timeout")
			}
		}
		return fn(&cycleTx{tx: tx})
	})
	return translateContention(err)
}

// SweepStale closes queued tickets created before cutoff. Searches that die
// without closing their ticket leave these behind.
func (s *TicketStore) SweepStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.Ticket{}).
		Where("status = ? AND created_at < ?", models.TicketQueued, cutoff).
		Update("status", models.TicketClosed)
	if res.Error != nil {
		return 0, eris.Wrap(res.Error, "failed to sweep stale tickets")
	}
	return res.RowsAffected, nil
}

// ClosedBefore returns up to limit closed tickets created before cutoff,
// oldest first.
func (s *TicketStore) ClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.DB.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.TicketClosed, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&tickets).Error
	if err != nil {
		return nil, eris.Wrap(err, "failed to list closed tickets")
	}
	return tickets, nil
}

// DeleteClosed removes the given closed tickets.
func (s *TicketStore) DeleteClosed(ctx context.Context, ids []uint64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, models.TicketClosed).
		Delete(&models.Ticket{})
	if res.Error != nil {
		return 0, eris.Wrap(res.Error, "failed to delete archived tickets")
	}
	return res.RowsAffected, nil
}

type cycleTx struct {
	tx *gorm.DB
}

func (c *cycleTx) ActiveContest(playerID string) (*matchmaking.ActiveContest, error) {
	return activeContest(c.tx, playerID)
}

func (c *cycleTx) ScanCandidates(area, excludePlayerID string, limit int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := c.tx.
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND area = ? AND player_id <> ?", models.TicketQueued, area, excludePlayerID).
		Order("created_at ASC").
		Limit(limit).
		Find(&tickets).Error
	if err != nil {
		return nil, eris.Wrap(err, "failed to scan candidate tickets")
	}
	return tickets, nil
}

func (c *cycleTx) CreateContest(contest models.Contest) (models.Contest, error) {
	contest.IsComplete = false
	if err := c.tx.Create(&contest).Error; err != nil {
		return models.Contest{}, eris.Wrap(err, "failed to insert contest")
	}
	return contest, nil
}

func (c *cycleTx) MarkMatched(ticketID uint64) error {
	err := c.tx.Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, models.TicketQueued).
		Update("status", models.TicketMatched).Error
	return eris.Wrapf(err, "failed to mark ticket %d matched", ticketID)
}

func (c *cycleTx) DeleteQueued(playerID string) error {
	err := c.tx.
		Where("player_id = ? AND status = ?", playerID, models.TicketQueued).
		Delete(&models.Ticket{}).Error
	return eris.Wrapf(err, "failed to delete queued ticket of %s", playerID)
}

func activeContest(db *gorm.DB, playerID string) (*matchmaking.ActiveContest, error) {
	var contest models.Contest
	err := db.
		Select("id", "compat_score").
		Where("is_complete = ? AND (player_one_id = ? OR player_two_id = ?)", false, playerID, playerID).
		Order("created_at DESC").
		First(&contest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "failed to look up active contest for %s", playerID)
	}
	return &matchmaking.ActiveContest{ID: contest.ID, Score: contest.CompatScore}, nil
}
