package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizroom/internal/model"
)

// QuestionRepository reads the question corpus.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByIDs retrieves the given questions, ordered as ids. Unknown ids are skipped.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, question_text, media_url, options, correct_option, score_value, metadata
		 FROM questions WHERE id = ANY($1::uuid[])`, ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[uuid.UUID]model.Question, len(ids))
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.QuestionText, &q.MediaURL, &q.Options, &q.CorrectOption, &q.ScoreValue, &q.Metadata); err != nil {
			return nil, err
		}
		byID[q.ID] = q
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			questions = append(questions, q)
		}
	}
	return questions, nil
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	if q.Metadata == nil {
		q.Metadata = []byte(`{}`)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (question_text, media_url, options, correct_option, score_value, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id`,
		q.QuestionText, q.MediaURL, q.Options, q.CorrectOption, q.ScoreValue, q.Metadata,
	).Scan(&q.ID)
}
