// Package cache keeps recently read player profiles in Redis so repeated
// searches by the same player skip the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"matchmaking-service/matchmaking"
)

const keyPrefix = "mm:profile:"

// Dial connects to the Redis server at url and pings it.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "invalid REDIS_URL")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "failed to ping redis")
	}
	return client, nil
}

// ProfileCache is a read-through matchmaking.ProfileStore. Redis failures are
// logged and the lookup falls back to the wrapped store.
type ProfileCache struct {
	rdb  *redis.Client
	next matchmaking.ProfileStore
	ttl  time.Duration
	log  zerolog.Logger
}

var _ matchmaking.ProfileStore = (*ProfileCache)(nil)

func NewProfileCache(rdb *redis.Client, next matchmaking.ProfileStore, ttl time.Duration, log zerolog.Logger) *ProfileCache {
	return &ProfileCache{
		rdb:  rdb,
		next: next,
		ttl:  ttl,
		log:  log.With().Str("component", "profile_cache").Logger(),
	}
}

func (c *ProfileCache) Profile(ctx context.Context, playerID string) (matchmaking.Profile, error) {
	key := keyPrefix + playerID
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p matchmaking.Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			return p, nil
		}
		c.log.Warn().Str("player_id", playerID).Msg("discarding undecodable cached profile")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("player_id", playerID).Msg("profile cache read failed")
	}

	p, err := c.next.Profile(ctx, playerID)
	if err != nil {
		return matchmaking.Profile{}, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.log.Warn().Err(err).Str("player_id", playerID).Msg("profile cache write failed")
		}
	}
	return p, nil
}

// Invalidate drops the cached profiles of playerIDs. Ratings change on
// settlement, so the contest flow calls this for both participants.
func (c *ProfileCache) Invalidate(ctx context.Context, playerIDs ...string) error {
	if len(playerIDs) == 0 {
		return nil
	}
	keys := make([]string, len(playerIDs))
	for i, id := range playerIDs {
		keys[i] = keyPrefix + id
	}
	return eris.Wrap(c.rdb.Del(ctx, keys...).Err(), "failed to invalidate cached profiles")
}
