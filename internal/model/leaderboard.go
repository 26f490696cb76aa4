package model

// LeaderboardEntry is a derived ranking row, recomputed from sessions.
type LeaderboardEntry struct {
	Rank             int           `json:"rank"`
	PlayerID         string        `json:"player_id"`
	Score            int           `json:"score"`
	CorrectCount     int           `json:"correct_count"`
	Answered         int           `json:"answered"`
	TotalQuestions   int           `json:"total_questions"`
	Status           SessionStatus `json:"status"`
	TimeToCompleteMs int64         `json:"time_to_complete_ms"`
}
