// Package store implements the matchmaking, contest and player persistence on
// PostgreSQL through gorm.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"matchmaking-service/matchmaking"
	"matchmaking-service/models"
)

// PoolConfig sizes the connection pool shared by every store.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to dsn, sizes the pool and migrates the schema.
func Open(ctx context.Context, dsn string, pool PoolConfig, log zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, eris.Wrap(err, "failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, eris.Wrap(err, "failed to get sql.DB")
	}
	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, eris.Wrap(err, "failed to ping database")
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&models.Player{},
		&models.Contest{},
		&models.Ticket{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, eris.Wrap(err, "failed to migrate database")
	}
	log.Info().Int("max_open_conns", pool.MaxOpenConns).Msg("database ready")
	return db, nil
}

// Close releases the pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return eris.Wrap(err, "failed to get sql.DB")
	}
	return sqlDB.Close()
}

// PostgreSQL error codes a cycle can lose a lock race with.
const (
	codeDeadlockDetected     = "40P01"
	codeSerializationFailure = "40001"
	codeLockNotAvailable     = "55P03"
)

// translateContention maps lock race aborts onto matchmaking.ErrContention.
// Any other error is returned unchanged.
func translateContention(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeDeadlockDetected, codeSerializationFailure, codeLockNotAvailable:
		return eris.Wrap(matchmaking.ErrContention, pgErr.Message)
	}
	return err
}
