package game

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizroom/internal/model"
	ws "github.com/stemsi/quizroom/internal/websocket"
)

// RoomStore is the persisted room record. Every mutation is a single
// conditional write reporting model.Updated or model.NoMatch.
type RoomStore interface {
	FindRoomByCode(ctx context.Context, code string) (*model.Room, error)
	AddPlayer(ctx context.Context, code string, entry model.PlayerEntry, allowed []model.RoomState) (*model.Room, model.Outcome, error)
	RemovePlayer(ctx context.Context, code, playerID string) (*model.Room, model.Outcome, error)
	UpdatePlayer(ctx context.Context, code, playerID string, patch model.PlayerPatch, allowed []model.RoomState) (*model.Room, model.Outcome, error)
	UpdateRoomFields(ctx context.Context, code string, cond model.RoomCondition, upd model.RoomUpdate) (*model.Room, model.Outcome, error)
}

// SessionStore is the persisted per-player session record.
type SessionStore interface {
	FindSession(ctx context.Context, roomID uuid.UUID, playerID string) (*model.Session, error)
	FindOrCreateSession(ctx context.Context, seed *model.Session) (*model.Session, bool, error)
	SaveSession(ctx context.Context, s *model.Session) (model.Outcome, error)
	FindSessionsByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Session, error)
}

// QuestionSource returns a room's canonical ordered question list.
type QuestionSource interface {
	GetQuestionsForRoom(ctx context.Context, room *model.Room) ([]model.Question, error)
}

// ActiveRooms lists rooms that have not finished.
type ActiveRooms interface {
	ListActive(ctx context.Context) ([]model.Room, error)
}

// LobbyPublisher fans room summaries out to lobby listeners.
type LobbyPublisher interface {
	PublishRoomUpdate(ctx context.Context, summary model.RoomSummary) error
}

// SettlementLocker serializes settlement of one room across server instances.
// ok is false when another holder has the lock.
type SettlementLocker interface {
	Acquire(ctx context.Context, roomCode string) (release func(), ok bool, err error)
}

// ResultSink receives the final standings of a settled room.
type ResultSink interface {
	EnqueueResults(ctx context.Context, room *model.Room) error
}

// Conn is a live client connection.
type Conn interface {
	ID() string
	Send(msg ws.Message) bool
	Close()
}

// Clock abstracts time so timers can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback. Stop after the callback has fired is a no-op.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
