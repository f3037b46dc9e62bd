package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchmaking-service/matchmaking"
	"matchmaking-service/matchmaking/matchmakingtest"
	"matchmaking-service/models"
)

// countingStore counts lookups that reach the backing store.
type countingStore struct {
	matchmaking.ProfileStore
	calls int
}

func (s *countingStore) Profile(ctx context.Context, id string) (matchmaking.Profile, error) {
	s.calls++
	return s.ProfileStore.Profile(ctx, id)
}

func newCache(t *testing.T) (*ProfileCache, *countingStore, *matchmakingtest.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	mem := matchmakingtest.NewStore()
	backing := &countingStore{ProfileStore: mem}
	return NewProfileCache(rdb, backing, time.Minute, zerolog.Nop()), backing, mem, mr
}

func TestProfileCache_ReadThrough(t *testing.T) {
	c, backing, mem, mr := newCache(t)
	mem.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	ctx := context.Background()

	first, err := c.Profile(ctx, "alice")
	require.NoError(t, err)
	second, err := c.Profile(ctx, "alice")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1500, second.Rating)
	assert.Equal(t, 1, backing.calls)
	assert.True(t, mr.Exists(keyPrefix+"alice"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"alice"))
}

func TestProfileCache_Invalidate(t *testing.T) {
	c, backing, mem, _ := newCache(t)
	mem.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	ctx := context.Background()

	_, err := c.Profile(ctx, "alice")
	require.NoError(t, err)

	mem.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1516})
	require.NoError(t, c.Invalidate(ctx, "alice", "bob"))

	p, err := c.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1516, p.Rating)
	assert.Equal(t, 2, backing.calls)
}

func TestProfileCache_MissingPlayerIsNotCached(t *testing.T) {
	c, _, _, mr := newCache(t)

	_, err := c.Profile(context.Background(), "ghost")
	require.ErrorIs(t, err, matchmaking.ErrPlayerNotFound)
	assert.False(t, mr.Exists(keyPrefix+"ghost"))
}

func TestProfileCache_RedisDownFallsBack(t *testing.T) {
	c, backing, mem, mr := newCache(t)
	mem.AddPlayer(models.Player{ID: "alice", Area: models.AreaNorth, Rating: 1500})
	mr.Close()

	p, err := c.Profile(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.PlayerID)
	assert.Equal(t, 1, backing.calls)
}
