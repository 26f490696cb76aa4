package game

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/stemsi/quizroom/internal/model"
)

// Scoring policy names accepted by PolicyByName.
const (
	PolicyBase      = "base"
	PolicyTimeBonus = "time_bonus"
)

// ScoringPolicy awards points for one answer.
type ScoringPolicy interface {
	Points(q *model.Question, correct bool, spent, limit time.Duration) int
}

// BasePolicy awards the question's score value, at least 1, for a correct answer.
type BasePolicy struct{}

func (BasePolicy) Points(q *model.Question, correct bool, _, _ time.Duration) int {
	if !correct {
		return 0
	}
	return max(q.ScoreValue, 1)
}

// TimeBonusPolicy adds up to Max points for a fast correct answer, scaled
// linearly by the unused share of the time limit and rounded half up.
type TimeBonusPolicy struct {
	Max int
}

func (p TimeBonusPolicy) Points(q *model.Question, correct bool, spent, limit time.Duration) int {
	base := BasePolicy{}.Points(q, correct, spent, limit)
	if base == 0 || p.Max <= 0 || limit <= 0 {
		return base
	}
	left := max(limit-max(spent, 0), 0)
	bonus := decimal.NewFromInt(int64(p.Max)).
		Mul(decimal.NewFromInt(int64(left))).
		Div(decimal.NewFromInt(int64(limit))).
		Round(0)
	return base + int(bonus.IntPart())
}

// PolicyByName returns the named policy, defaulting to BasePolicy.
func PolicyByName(name string, bonusMax int) ScoringPolicy {
	if name == PolicyTimeBonus {
		return TimeBonusPolicy{Max: bonusMax}
	}
	return BasePolicy{}
}
