package model

import (
	"time"

	"github.com/google/uuid"
)

// RoomResult is one row of a settled room's final standings, as queued for
// persistence.
type RoomResult struct {
	RoomID           uuid.UUID `json:"room_id"`
	RoomCode         string    `json:"room_code"`
	PlayerID         string    `json:"player_id"`
	Rank             int       `json:"rank"`
	Score            int       `json:"score"`
	CorrectCount     int       `json:"correct_count"`
	Answered         int       `json:"answered"`
	TotalQuestions   int       `json:"total_questions"`
	Status           string    `json:"status"`
	TimeToCompleteMs int64     `json:"time_to_complete_ms"`
	IsWinner         bool      `json:"is_winner"`
	EndedAt          time.Time `json:"ended_at"`
}

// Results flattens a finished room's leaderboard.
func (r *Room) Results() []RoomResult {
	var ended time.Time
	if r.EndedAt != nil {
		ended = *r.EndedAt
	}
	out := make([]RoomResult, len(r.Leaderboard))
	for i, e := range r.Leaderboard {
		out[i] = RoomResult{
			RoomID:           r.ID,
			RoomCode:         r.Code,
			PlayerID:         e.PlayerID,
			Rank:             e.Rank,
			Score:            e.Score,
			CorrectCount:     e.CorrectCount,
			Answered:         e.Answered,
			TotalQuestions:   e.TotalQuestions,
			Status:           e.Status.String(),
			TimeToCompleteMs: e.TimeToCompleteMs,
			IsWinner:         r.Winner != nil && r.Winner.PlayerID == e.PlayerID,
			EndedAt:          ended,
		}
	}
	return out
}
