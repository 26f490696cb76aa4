package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
)

// releaseLock deletes the key only while it still holds our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SettlementLock is a per-room Redis lock held while a room is settled.
type SettlementLock struct {
	rdb *redis.Client
	ttl time.Duration
	log zerolog.Logger
}

// NewSettlementLock creates a lock whose keys expire after ttl.
func NewSettlementLock(rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *SettlementLock {
	return &SettlementLock{
		rdb: rdb,
		ttl: ttl,
		log: log.With().Str("component", "settlement_lock").Logger(),
	}
}

// Acquire takes the lock for roomCode. ok is false if another holder has it.
func (l *SettlementLock) Acquire(ctx context.Context, roomCode string) (func(), bool, error) {
	key := config.CacheKey.RoomSettlingKey(roomCode)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseLock.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Warn().Err(err).Str("key", key).Msg("Failed to release lock")
		}
	}
	return release, true, nil
}
