package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
)

// ErrNoQuestions is returned when a room references no known question.
var ErrNoQuestions = errors.New("room has no questions")

// QuestionLister loads questions from the corpus in the given order.
type QuestionLister interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}

// ActiveRoomLister lists rooms that have not finished.
type ActiveRoomLister interface {
	ListActive(ctx context.Context) ([]model.Room, error)
}

// QuestionService serves a room's question list from Redis, falling back to
// the corpus on a miss. A nil Redis client disables caching.
type QuestionService struct {
	questions QuestionLister
	rdb       *redis.Client
	ttl       time.Duration
	log       zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questions QuestionLister, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questions: questions,
		rdb:       rdb,
		ttl:       ttl,
		log:       log.With().Str("component", "question_service").Logger(),
	}
}

// GetQuestionsForRoom returns the room's questions in canonical order.
func (s *QuestionService) GetQuestionsForRoom(ctx context.Context, room *model.Room) ([]model.Question, error) {
	if s.rdb != nil {
		data, err := s.rdb.Get(ctx, config.CacheKey.RoomQuestionsKey(room.ID.String())).Bytes()
		switch {
		case err == nil:
			var qs []model.Question
			if err := json.Unmarshal(data, &qs); err == nil {
				return qs, nil
			}
			s.log.Warn().Str("room", room.Code).Msg("Corrupt question cache, reloading")
		case !errors.Is(err, redis.Nil):
			s.log.Warn().Err(err).Str("room", room.Code).Msg("Question cache unavailable, reading corpus")
		}
	}
	return s.WarmRoomCache(ctx, room)
}

// WarmRoomCache loads a room's questions from the corpus and caches them.
// Used on a cache miss, by RefreshCache and by PrewarmActiveRooms.
func (s *QuestionService) WarmRoomCache(ctx context.Context, room *model.Room) ([]model.Question, error) {
	qs, err := s.questions.ListByIDs(ctx, room.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(qs) < len(room.QuestionIDs) {
		s.log.Warn().
			Str("room", room.Code).
			Int("expected", len(room.QuestionIDs)).
			Int("found", len(qs)).
			Msg("Room references missing questions")
	}
	if s.rdb == nil || len(qs) == 0 {
		return qs, nil
	}

	data, err := json.Marshal(qs)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.RoomQuestionsKey(room.ID.String()), data, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("room", room.Code).Msg("Failed to cache questions")
		return qs, nil
	}

	s.log.Debug().Str("room", room.Code).Int("questions", len(qs)).Msg("Cache warmed")
	return qs, nil
}

// RefreshCache re-caches a room's questions, e.g. after the corpus changed.
func (s *QuestionService) RefreshCache(ctx context.Context, room *model.Room) error {
	qs, err := s.WarmRoomCache(ctx, room)
	if err != nil {
		return err
	}
	if len(qs) == 0 {
		return ErrNoQuestions
	}
	s.log.Info().Str("room", room.Code).Msg("Cache refreshed")
	return nil
}

// PrewarmActiveRooms loads every unfinished room's questions into Redis on
// startup.
func (s *QuestionService) PrewarmActiveRooms(ctx context.Context, rooms ActiveRoomLister) error {
	active, err := rooms.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active rooms: %w", err)
	}
	if len(active) == 0 {
		s.log.Info().Msg("No active rooms to prewarm")
		return nil
	}

	warmed := 0
	for i := range active {
		if _, err := s.WarmRoomCache(ctx, &active[i]); err != nil {
			s.log.Warn().Err(err).Str("room", active[i].Code).Msg("Failed to warm room, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(active)).Msg("Prewarming complete")
	return nil
}
