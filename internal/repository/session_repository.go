package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizroom/internal/model"
)

const sessionColumns = `id, room_id, player_id, score, correct_count, total_questions,
	current_question_index, shuffled_questions, answers, status, is_ready,
	started_at, completed_at, version, created_at`

// SessionRepository handles per-player session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.Session, error) {
	s := &model.Session{}
	var status string
	err := row.Scan(
		&s.ID, &s.RoomID, &s.PlayerID, &s.Score, &s.CorrectCount, &s.TotalQuestions,
		&s.CurrentQuestionIndex, &s.ShuffledQuestions, &s.Answers, &status, &s.IsReady,
		&s.StartedAt, &s.CompletedAt, &s.Version, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := s.Status.UnmarshalText([]byte(status)); err != nil {
		return nil, err
	}
	return s, nil
}

// FindSession retrieves the session for a (room, player) pair.
func (r *SessionRepository) FindSession(ctx context.Context, roomID uuid.UUID, playerID string) (*model.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = $1 AND player_id = $2`,
		roomID, playerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return s, err
}

// FindOrCreateSession inserts seed unless a session already exists for its
// (room, player) pair, and returns whichever row won. created reports whether
// seed was inserted.
func (r *SessionRepository) FindOrCreateSession(ctx context.Context, seed *model.Session) (*model.Session, bool, error) {
	if seed.Answers == nil {
		seed.Answers = []model.Answer{}
	}
	s, err := scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO sessions (room_id, player_id, total_questions, shuffled_questions, answers, status, is_ready)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (room_id, player_id) DO NOTHING
		 RETURNING `+sessionColumns,
		seed.RoomID, seed.PlayerID, seed.TotalQuestions, seed.ShuffledQuestions, seed.Answers,
		seed.Status.String(), seed.IsReady,
	))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// Concurrent join for the same player: read the row that won.
	existing, err := r.FindSession(ctx, seed.RoomID, seed.PlayerID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// SaveSession writes s if nobody else has saved it since it was read.
// On success s.Version is advanced.
func (r *SessionRepository) SaveSession(ctx context.Context, s *model.Session) (model.Outcome, error) {
	var version int
	err := r.pool.QueryRow(ctx,
		`UPDATE sessions
		 SET score = $3,
		     correct_count = $4,
		     total_questions = $5,
		     current_question_index = $6,
		     shuffled_questions = $7,
		     answers = $8,
		     status = $9,
		     is_ready = $10,
		     started_at = $11,
		     completed_at = $12,
		     version = version + 1
		 WHERE id = $1 AND version = $2
		 RETURNING version`,
		s.ID, s.Version, s.Score, s.CorrectCount, s.TotalQuestions, s.CurrentQuestionIndex,
		s.ShuffledQuestions, s.Answers, s.Status.String(), s.IsReady, s.StartedAt, s.CompletedAt,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NoMatch, nil
		}
		return model.NoMatch, err
	}
	s.Version = version
	return model.Updated, nil
}

// FindSessionsByRoom lists every session of a room in creation order.
func (r *SessionRepository) FindSessionsByRoom(ctx context.Context, roomID uuid.UUID) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE room_id = $1 ORDER BY created_at, id`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
