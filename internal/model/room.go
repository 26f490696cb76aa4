package model

import (
	"time"

	"github.com/google/uuid"
)

// Room is one game instance, addressed by a short shareable code.
type Room struct {
	ID                   uuid.UUID          `json:"id"`
	Code                 string             `json:"code"`
	Title                string             `json:"title"`
	Capacity             int                `json:"capacity"`
	Players              []PlayerEntry      `json:"players"`
	QuestionIDs          []uuid.UUID        `json:"question_ids"`
	TimePerQuestion      int                `json:"time_per_question"` // seconds
	TotalTime            int                `json:"total_time"`        // minutes
	CurrentQuestionIndex int                `json:"current_question_index"`
	State                RoomState          `json:"state"`
	Leaderboard          []LeaderboardEntry `json:"leaderboard"`
	Winner               *LeaderboardEntry  `json:"winner"`
	CreatedAt            time.Time          `json:"created_at"`
	StartedAt            *time.Time         `json:"started_at,omitempty"`
	EndedAt              *time.Time         `json:"ended_at,omitempty"`
}

// PlayerEntry is a current member of a room.
type PlayerEntry struct {
	PlayerID      string    `json:"player_id"`
	ConnectionRef string    `json:"connection_ref"`
	IsReady       bool      `json:"is_ready"`
	JoinedAt      time.Time `json:"joined_at"`
}

// PlayerPatch holds the mutable fields of a PlayerEntry. Nil fields are left as is.
type PlayerPatch struct {
	ConnectionRef *string `json:"connection_ref,omitempty"`
	IsReady       *bool   `json:"is_ready,omitempty"`
}

// Apply merges the patch into e.
func (p PlayerPatch) Apply(e *PlayerEntry) {
	if p.ConnectionRef != nil {
		e.ConnectionRef = *p.ConnectionRef
	}
	if p.IsReady != nil {
		e.IsReady = *p.IsReady
	}
}

// HasPlayer reports whether playerID is a current member.
func (r *Room) HasPlayer(playerID string) bool {
	return r.PlayerIndex(playerID) >= 0
}

// PlayerIndex returns the position of playerID in Players, or -1.
func (r *Room) PlayerIndex(playerID string) int {
	for i := range r.Players {
		if r.Players[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// IsFull reports whether the member list has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Players) >= r.Capacity
}

// AllReady reports whether there is at least one member and every member is ready.
func (r *Room) AllReady() bool {
	if len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

// SessionDeadline returns when the match-wide timer expires, or false if the
// game has not started.
func (r *Room) SessionDeadline() (time.Time, bool) {
	if r.StartedAt == nil {
		return time.Time{}, false
	}
	return r.StartedAt.Add(time.Duration(r.TotalTime) * time.Minute), true
}

// Summary is the lobby-facing projection of a room.
func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		Code:        r.Code,
		Title:       r.Title,
		State:       r.State,
		PlayerCount: len(r.Players),
		Capacity:    r.Capacity,
	}
}

// RoomSummary is broadcast to lobby listeners.
type RoomSummary struct {
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	State       RoomState `json:"state"`
	PlayerCount int       `json:"player_count"`
	Capacity    int       `json:"capacity"`
}

// RoomCondition is the precondition of a conditional room update.
type RoomCondition struct {
	States        []RoomState
	QuestionIndex *int
}

// RoomUpdate lists the fields written by a conditional room update. Nil fields are untouched.
type RoomUpdate struct {
	State                *RoomState
	CurrentQuestionIndex *int
	StartedAt            *time.Time
	EndedAt              *time.Time
	Leaderboard          []LeaderboardEntry
	Winner               *LeaderboardEntry
}

// Apply writes the update onto r.
func (u RoomUpdate) Apply(r *Room) {
	if u.State != nil {
		r.State = *u.State
	}
	if u.CurrentQuestionIndex != nil {
		r.CurrentQuestionIndex = *u.CurrentQuestionIndex
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		r.StartedAt = &t
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		r.EndedAt = &t
	}
	if u.Leaderboard != nil {
		r.Leaderboard = u.Leaderboard
	}
	if u.Winner != nil {
		w := *u.Winner
		r.Winner = &w
	}
}

// Matches reports whether r satisfies the condition.
func (c RoomCondition) Matches(r *Room) bool {
	if len(c.States) > 0 {
		ok := false
		for _, s := range c.States {
			if r.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if c.QuestionIndex != nil && r.CurrentQuestionIndex != *c.QuestionIndex {
		return false
	}
	return true
}
