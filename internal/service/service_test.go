package service_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
	"github.com/stemsi/quizroom/internal/service"
)

func makeRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: time.Hour})

	token, err := auth.GenerateToken("alice", service.RoleHost)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.PlayerID)
	assert.Equal(t, service.RoleHost, claims.Role)

	other := service.NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	require.Error(t, err)

	_, err = auth.GenerateToken("alice", service.Role("root"))
	require.Error(t, err)
}

func TestAuthService_ExpiredToken(t *testing.T) {
	auth := service.NewAuthService(&config.Config{JWTSecret: "secret", JWTExpiry: -time.Minute})
	token, err := auth.GenerateToken("bob", service.RolePlayer)
	require.NoError(t, err)

	_, err = auth.ValidateToken(token)
	require.Error(t, err)
}

type countingLister struct {
	calls atomic.Int32
	qs    map[uuid.UUID]model.Question
}

func (l *countingLister) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	l.calls.Add(1)
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := l.qs[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type activeRooms []model.Room

func (r activeRooms) ListActive(context.Context) ([]model.Room, error) { return r, nil }

func makeRoom(lister *countingLister, n int) *model.Room {
	room := &model.Room{ID: uuid.New(), Code: "QZ1"}
	for i := 0; i < n; i++ {
		q := model.Question{ID: uuid.New(), QuestionText: "q", Options: []byte(`["A","B"]`), CorrectOption: "A"}
		lister.qs[q.ID] = q
		room.QuestionIDs = append(room.QuestionIDs, q.ID)
	}
	return room
}

func TestQuestionService_CachesCorpus(t *testing.T) {
	mr, rdb := makeRedis(t)
	lister := &countingLister{qs: map[uuid.UUID]model.Question{}}
	room := makeRoom(lister, 3)
	svc := service.NewQuestionService(lister, rdb, time.Hour, zerolog.Nop())
	ctx := context.Background()

	qs, err := svc.GetQuestionsForRoom(ctx, room)
	require.NoError(t, err)
	require.Len(t, qs, 3)
	for i := range qs {
		assert.Equal(t, room.QuestionIDs[i], qs[i].ID)
	}
	assert.True(t, mr.Exists(config.CacheKey.RoomQuestionsKey(room.ID.String())))

	again, err := svc.GetQuestionsForRoom(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, qs, again)
	assert.Equal(t, int32(1), lister.calls.Load(), "second read is served from Redis")

	mr.FastForward(2 * time.Hour)
	_, err = svc.GetQuestionsForRoom(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, int32(2), lister.calls.Load(), "expired cache reloads the corpus")
}

func TestQuestionService_CorruptCacheReloads(t *testing.T) {
	mr, rdb := makeRedis(t)
	lister := &countingLister{qs: map[uuid.UUID]model.Question{}}
	room := makeRoom(lister, 2)
	svc := service.NewQuestionService(lister, rdb, time.Hour, zerolog.Nop())

	require.NoError(t, mr.Set(config.CacheKey.RoomQuestionsKey(room.ID.String()), "{not json"))

	qs, err := svc.GetQuestionsForRoom(context.Background(), room)
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestQuestionService_WithoutRedis(t *testing.T) {
	lister := &countingLister{qs: map[uuid.UUID]model.Question{}}
	room := makeRoom(lister, 2)
	svc := service.NewQuestionService(lister, nil, time.Hour, zerolog.Nop())

	qs, err := svc.GetQuestionsForRoom(context.Background(), room)
	require.NoError(t, err)
	assert.Len(t, qs, 2)

	empty := &model.Room{ID: uuid.New(), Code: "EMPTY"}
	require.ErrorIs(t, svc.RefreshCache(context.Background(), empty), service.ErrNoQuestions)
}

func TestQuestionService_PrewarmActiveRooms(t *testing.T) {
	mr, rdb := makeRedis(t)
	lister := &countingLister{qs: map[uuid.UUID]model.Question{}}
	a, b := makeRoom(lister, 1), makeRoom(lister, 2)
	svc := service.NewQuestionService(lister, rdb, time.Hour, zerolog.Nop())

	require.NoError(t, svc.PrewarmActiveRooms(context.Background(), activeRooms{*a, *b}))

	assert.True(t, mr.Exists(config.CacheKey.RoomQuestionsKey(a.ID.String())))
	assert.True(t, mr.Exists(config.CacheKey.RoomQuestionsKey(b.ID.String())))
}

func TestLobbyService_PublishesSummaries(t *testing.T) {
	_, rdb := makeRedis(t)
	lobby := service.NewLobbyService(rdb)
	ctx := context.Background()

	sub := lobby.Subscribe(ctx)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	summary := model.RoomSummary{Code: "QZ1", Title: "Quiz", State: model.RoomStatePlaying, PlayerCount: 2, Capacity: 4}
	require.NoError(t, lobby.PublishRoomUpdate(ctx, summary))

	select {
	case msg := <-sub.Channel():
		var got model.RoomSummary
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, summary, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no lobby message received")
	}
}

func TestSettlementLock(t *testing.T) {
	mr, rdb := makeRedis(t)
	lock := service.NewSettlementLock(rdb, 30*time.Second, zerolog.Nop())
	ctx := context.Background()
	key := config.CacheKey.RoomSettlingKey("QZ1")

	release, ok, err := lock.Acquire(ctx, "QZ1")
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = lock.Acquire(ctx, "QZ1")
	require.NoError(t, err)
	assert.False(t, ok, "lock is held")

	release()
	assert.False(t, mr.Exists(key))

	stale, ok, err := lock.Acquire(ctx, "QZ1")
	require.NoError(t, err)
	require.True(t, ok)
	mr.FastForward(time.Minute)

	_, ok, err = lock.Acquire(ctx, "QZ1")
	require.NoError(t, err)
	require.True(t, ok, "expired lock can be taken over")

	stale()
	assert.True(t, mr.Exists(key), "a stale holder must not release the new holder's lock")
}

func TestResultQueue_EnqueueResults(t *testing.T) {
	mr, rdb := makeRedis(t)
	queue := service.NewResultQueue(rdb)
	ended := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	winner := model.LeaderboardEntry{Rank: 1, PlayerID: "alice", Score: 30}
	room := &model.Room{
		ID:      uuid.New(),
		Code:    "QZ1",
		EndedAt: &ended,
		Leaderboard: []model.LeaderboardEntry{
			winner,
			{Rank: 2, PlayerID: "bob", Score: 10},
		},
		Winner: &winner,
	}

	require.NoError(t, queue.EnqueueResults(context.Background(), room))

	items, err := mr.List(config.WorkerKey.PersistResultsQueue)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var first model.RoomResult
	require.NoError(t, json.Unmarshal([]byte(items[0]), &first))
	assert.Equal(t, "alice", first.PlayerID)
	assert.True(t, first.IsWinner)
	assert.Equal(t, ended, first.EndedAt)
}
