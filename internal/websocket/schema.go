package websocket

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stemsi/quizroom/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionJoinRoom         Action = "join-room"
	ActionLeaveRoom        Action = "leave-room"
	ActionPlayerReady      Action = "player-ready"
	ActionAnswerQuestion   Action = "answer-question"
	ActionRequestQuestion  Action = "request-question"
	ActionRequestGameState Action = "request-game-state"
	ActionAdminForceStart  Action = "admin-force-start"
	ActionHeartbeat        Action = "heartbeat"
)

// RequestEnvelope wraps every inbound message. Data is decoded once the
// action is known. A non-empty AckID asks for an "ack" reply.
type RequestEnvelope struct {
	Event Action          `json:"event"`
	Data  json.RawMessage `json:"data"`
	AckID string          `json:"ack_id,omitempty"`
}

// RoomRequest is the payload of every action that only names a room.
type RoomRequest struct {
	RoomCode string `json:"roomCode" binding:"required,max=32"`
}

type JoinRoomRequest struct {
	RoomCode string `json:"roomCode" binding:"required,max=32"`
	PlayerID string `json:"playerId" binding:"required,max=64"`
}

type AnswerQuestionRequest struct {
	RoomCode       string    `json:"roomCode" binding:"required,max=32"`
	QuestionID     uuid.UUID `json:"questionId" binding:"required"`
	SelectedAnswer string    `json:"selectedAnswer" binding:"max=256"`
	// TimeSpent is in milliseconds.
	TimeSpent int64 `json:"timeSpent" binding:"min=0"`
}

type RequestQuestionRequest struct {
	RoomCode      string `json:"roomCode" binding:"required,max=32"`
	QuestionIndex int    `json:"questionIndex" binding:"min=0"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventJoinedRoom                Event = "joined-room"
	EventLeftRoom                  Event = "left-room"
	EventRoomUpdate                Event = "room-update"
	EventRoomUpdateGlobal          Event = "room-update-global"
	EventGameStarting              Event = "game-starting"
	EventGameCountdown             Event = "game-countdown"
	EventNewQuestion               Event = "new-question"
	EventQuestionLoaded            Event = "question-loaded"
	EventAnswerResult              Event = "answer-result"
	EventPlayerProgress            Event = "player-progress"
	EventLiveLeaderboardUpdate     Event = "live-leaderboard-update"
	EventSessionTimerUpdate        Event = "session-timer-update"
	EventSessionTimeUp             Event = "session-time-up"
	EventQuestionComplete          Event = "question-complete"
	EventPlayerCompleted           Event = "player-completed"
	EventPlayerCompletionConfirmed Event = "player-completion-confirmed"
	EventGameEnded                 Event = "game-ended"
	EventGameState                 Event = "game-state"
	EventHeartbeat                 Event = "heartbeat"
	EventAck                       Event = "ack"
	EventError                     Event = "error"
)

// Message is one outbound frame.
type Message struct {
	Event Event `json:"event"`
	Data  any   `json:"data,omitempty"`
}

type JoinedRoomResponse struct {
	Room        *model.Room    `json:"room"`
	Session     *model.Session `json:"session"`
	Reconnected bool           `json:"reconnected"`
}

type RoomUpdateResponse struct {
	Room *model.Room `json:"room"`
}

type LeftRoomResponse struct {
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type GameStartingResponse struct {
	RoomCode  string `json:"roomCode"`
	Countdown int    `json:"countdown"`
}

type CountdownResponse struct {
	RoomCode  string `json:"roomCode"`
	Remaining int    `json:"remaining"`
}

type QuestionResponse struct {
	RoomCode      string                  `json:"roomCode"`
	QuestionIndex int                     `json:"questionIndex"`
	Total         int                     `json:"total"`
	TimeLimit     int                     `json:"timeLimit"`
	Question      model.QuestionForPlayer `json:"question"`
}

type AnswerResultResponse struct {
	QuestionID    uuid.UUID `json:"questionId"`
	Correct       bool      `json:"correct"`
	Points        int       `json:"points"`
	Score         int       `json:"score"`
	CorrectAnswer string    `json:"correctAnswer"`
	Answered      int       `json:"answered"`
	Total         int       `json:"total"`
}

type PlayerProgressResponse struct {
	PlayerID string `json:"playerId"`
	Answered int    `json:"answered"`
	Total    int    `json:"total"`
	Score    int    `json:"score"`
}

type LeaderboardResponse struct {
	RoomCode    string                   `json:"roomCode"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
}

type SessionTimerResponse struct {
	RoomCode         string `json:"roomCode"`
	RemainingSeconds int    `json:"remainingSeconds"`
}

type QuestionCompleteResponse struct {
	RoomCode      string `json:"roomCode"`
	QuestionIndex int    `json:"questionIndex"`
}

type PlayerCompletedResponse struct {
	PlayerID     string `json:"playerId"`
	Score        int    `json:"score"`
	CorrectCount int    `json:"correctCount"`
}

type GameEndedResponse struct {
	RoomCode    string                   `json:"roomCode"`
	Reason      string                   `json:"reason"`
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
	Winner      *model.LeaderboardEntry  `json:"winner"`
}

type GameStateResponse struct {
	Room             *model.Room              `json:"room"`
	Session          *model.Session           `json:"session"`
	Question         *QuestionResponse        `json:"question,omitempty"`
	RemainingSeconds int                      `json:"remainingSeconds"`
	Leaderboard      []model.LeaderboardEntry `json:"leaderboard"`
}

type HeartbeatResponse struct {
	ServerTime int64 `json:"serverTime"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type AckResponse struct {
	AckID string         `json:"ack_id"`
	OK    bool           `json:"ok"`
	Error *ErrorResponse `json:"error,omitempty"`
}
