package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
)

// LobbyService fans room summaries out over Redis pub/sub so every server
// instance can stream them to lobby listeners.
type LobbyService struct {
	rdb *redis.Client
}

// NewLobbyService creates a new LobbyService.
func NewLobbyService(rdb *redis.Client) *LobbyService {
	return &LobbyService{rdb: rdb}
}

// PublishRoomUpdate broadcasts summary to the lobby channel.
func (s *LobbyService) PublishRoomUpdate(ctx context.Context, summary model.RoomSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.LobbyChannel(), data).Err(); err != nil {
		return fmt.Errorf("publish lobby update: %w", err)
	}
	return nil
}

// Subscribe opens a subscription to the lobby channel. The caller closes it.
func (s *LobbyService) Subscribe(ctx context.Context) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.LobbyChannel())
}
