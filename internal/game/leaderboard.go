package game

import (
	"sort"
	"time"

	"github.com/stemsi/quizroom/internal/model"
)

// dedupeSessions keeps the first session seen for each player.
func dedupeSessions(sessions []model.Session) []model.Session {
	seen := make(map[string]struct{}, len(sessions))
	out := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if _, ok := seen[s.PlayerID]; ok {
			continue
		}
		seen[s.PlayerID] = struct{}{}
		out = append(out, s)
	}
	return out
}

// BuildLeaderboard ranks one entry per player: completed first, then score,
// then questions answered, then time to complete. Ties fall back to player
// ID so the order is total.
func BuildLeaderboard(sessions []model.Session, now time.Time) []model.LeaderboardEntry {
	sessions = dedupeSessions(sessions)
	entries := make([]model.LeaderboardEntry, 0, len(sessions))
	for i := range sessions {
		s := &sessions[i]
		entries = append(entries, model.LeaderboardEntry{
			PlayerID:         s.PlayerID,
			Score:            s.Score,
			CorrectCount:     s.CorrectCount,
			Answered:         len(s.Answers),
			TotalQuestions:   s.TotalQuestions,
			Status:           s.Status,
			TimeToCompleteMs: s.Elapsed(now).Milliseconds(),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		ac, bc := a.Status == model.SessionStatusCompleted, b.Status == model.SessionStatusCompleted
		if ac != bc {
			return ac
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Answered != b.Answered {
			return a.Answered > b.Answered
		}
		if a.TimeToCompleteMs != b.TimeToCompleteMs {
			return a.TimeToCompleteMs < b.TimeToCompleteMs
		}
		return a.PlayerID < b.PlayerID
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
