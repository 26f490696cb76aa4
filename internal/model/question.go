package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Question is a read-only record from the question corpus.
type Question struct {
	ID            uuid.UUID       `json:"id"`
	QuestionText  string          `json:"question_text"`
	MediaURL      string          `json:"media_url,omitempty"`
	Options       json.RawMessage `json:"options"`
	CorrectOption string          `json:"correct_option"`
	ScoreValue    int             `json:"score_value"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// QuestionForPlayer is the player-facing view of a question (no answer).
type QuestionForPlayer struct {
	ID           uuid.UUID       `json:"id"`
	QuestionText string          `json:"question_text"`
	MediaURL     string          `json:"media_url,omitempty"`
	Options      json.RawMessage `json:"options"`
	ScoreValue   int             `json:"score_value"`
}

// ForPlayer strips the correct answer.
func (q *Question) ForPlayer() QuestionForPlayer {
	return QuestionForPlayer{
		ID:           q.ID,
		QuestionText: q.QuestionText,
		MediaURL:     q.MediaURL,
		Options:      q.Options,
		ScoreValue:   q.ScoreValue,
	}
}
