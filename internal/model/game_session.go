package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is one player's run through a room. It survives reconnects.
type Session struct {
	ID                   uuid.UUID     `json:"id"`
	RoomID               uuid.UUID     `json:"room_id"`
	PlayerID             string        `json:"player_id"`
	Score                int           `json:"score"`
	CorrectCount         int           `json:"correct_count"`
	TotalQuestions       int           `json:"total_questions"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	ShuffledQuestions    []uuid.UUID   `json:"shuffled_questions"`
	Answers              []Answer      `json:"answers"`
	Status               SessionStatus `json:"status"`
	IsReady              bool          `json:"is_ready"`
	StartedAt            *time.Time    `json:"started_at,omitempty"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	// Version backs optimistic concurrency on SaveSession.
	Version int `json:"-"`
}

// Answer is a recorded response to one question.
type Answer struct {
	QuestionID     uuid.UUID `json:"question_id"`
	SelectedAnswer string    `json:"selected_answer"`
	IsCorrect      bool      `json:"is_correct"`
	Points         int       `json:"points"`
	TimeSpentMs    int64     `json:"time_spent_ms"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// PositionOf returns the index of questionID in the player's own sequence, or -1.
func (s *Session) PositionOf(questionID uuid.UUID) int {
	for i, id := range s.ShuffledQuestions {
		if id == questionID {
			return i
		}
	}
	return -1
}

// HasAnswered reports whether questionID already has a recorded answer.
func (s *Session) HasAnswered(questionID uuid.UUID) bool {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return true
		}
	}
	return false
}

// CurrentQuestionID returns the question this player should see now.
func (s *Session) CurrentQuestionID() (uuid.UUID, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.ShuffledQuestions) {
		return uuid.Nil, false
	}
	return s.ShuffledQuestions[s.CurrentQuestionIndex], true
}

// Finished reports whether the player has exhausted their sequence.
func (s *Session) Finished() bool {
	return s.CurrentQuestionIndex >= len(s.ShuffledQuestions)
}

// Elapsed is the time the player has spent, up to completion or now.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	if end.Before(*s.StartedAt) {
		return 0
	}
	return end.Sub(*s.StartedAt)
}

// Complete marks the session completed at t. It is a no-op on a completed session.
func (s *Session) Complete(t time.Time) {
	if !s.Status.CanTransitionTo(SessionStatusCompleted) {
		return
	}
	s.Status = SessionStatusCompleted
	s.CompletedAt = &t
}
