package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizroom/internal/model"
)

const roomColumns = `id, code, title, capacity, players, question_ids, time_per_question, total_time,
	current_question_index, state, leaderboard, winner, created_at, started_at, ended_at`

// RoomRepository handles room data access. Every membership or lifecycle
// mutation is a single conditional UPDATE so concurrent writers cannot lose
// each other's changes.
type RoomRepository struct {
	pool *pgxpool.Pool
}

// NewRoomRepository creates a new RoomRepository.
func NewRoomRepository(pool *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func scanRoom(row pgx.Row) (*model.Room, error) {
	r := &model.Room{}
	var state string
	err := row.Scan(
		&r.ID, &r.Code, &r.Title, &r.Capacity, &r.Players, &r.QuestionIDs,
		&r.TimePerQuestion, &r.TotalTime, &r.CurrentQuestionIndex, &state,
		&r.Leaderboard, &r.Winner, &r.CreatedAt, &r.StartedAt, &r.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.State, err = model.ParseRoomState(state); err != nil {
		return nil, err
	}
	return r, nil
}

// conditional maps the no-row case of an UPDATE ... RETURNING to NoMatch.
func conditional(r *model.Room, err error) (*model.Room, model.Outcome, error) {
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.NoMatch, nil
		}
		return nil, model.NoMatch, err
	}
	return r, model.Updated, nil
}

// Create inserts a new room in the waiting state.
func (r *RoomRepository) Create(ctx context.Context, room *model.Room) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO rooms (code, title, capacity, question_ids, time_per_question, total_time)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		room.Code, room.Title, room.Capacity, room.QuestionIDs, room.TimePerQuestion, room.TotalTime,
	).Scan(&room.ID, &room.CreatedAt)
}

// FindRoomByCode retrieves a room by its share code.
func (r *RoomRepository) FindRoomByCode(ctx context.Context, code string) (*model.Room, error) {
	room, err := scanRoom(r.pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	return room, err
}

// ListActive returns rooms that have not finished, newest first.
func (r *RoomRepository) ListActive(ctx context.Context) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE state <> 'finished' ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// AddPlayer appends entry when the player is absent, the room has a free slot
// and its state is one of allowed.
func (r *RoomRepository) AddPlayer(ctx context.Context, code string, entry model.PlayerEntry, allowed []model.RoomState) (*model.Room, model.Outcome, error) {
	return conditional(scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET players = players || jsonb_build_array($2::jsonb)
		 WHERE code = $1
		   AND state = ANY($3::text[])
		   AND jsonb_array_length(players) < capacity
		   AND NOT EXISTS (
		       SELECT 1 FROM jsonb_array_elements(players) AS p WHERE p->>'player_id' = $4
		   )
		 RETURNING `+roomColumns,
		code, entry, model.RoomStateNames(allowed), entry.PlayerID,
	)))
}

// RemovePlayer drops playerID from an unfinished room.
func (r *RoomRepository) RemovePlayer(ctx context.Context, code, playerID string) (*model.Room, model.Outcome, error) {
	return conditional(scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET players = COALESCE((
		         SELECT jsonb_agg(e.p ORDER BY e.ord)
		         FROM jsonb_array_elements(players) WITH ORDINALITY AS e(p, ord)
		         WHERE e.p->>'player_id' <> $2
		     ), '[]'::jsonb)
		 WHERE code = $1
		   AND state <> 'finished'
		   AND EXISTS (
		       SELECT 1 FROM jsonb_array_elements(players) AS p WHERE p->>'player_id' = $2
		   )
		 RETURNING `+roomColumns,
		code, playerID,
	)))
}

// UpdatePlayer merges patch into the entry for playerID while the room state is one of allowed.
func (r *RoomRepository) UpdatePlayer(ctx context.Context, code, playerID string, patch model.PlayerPatch, allowed []model.RoomState) (*model.Room, model.Outcome, error) {
	return conditional(scanRoom(r.pool.QueryRow(ctx,
		`UPDATE rooms
		 SET players = (
		         SELECT jsonb_agg(
		             CASE WHEN e.p->>'player_id' = $2 THEN e.p || $3::jsonb ELSE e.p END
		             ORDER BY e.ord)
		         FROM jsonb_array_elements(players) WITH ORDINALITY AS e(p, ord)
		     )
		 WHERE code = $1
		   AND state = ANY($4::text[])
		   AND EXISTS (
		       SELECT 1 FROM jsonb_array_elements(players) AS p WHERE p->>'player_id' = $2
		   )
		 RETURNING `+roomColumns,
		code, playerID, patch, model.RoomStateNames(allowed),
	)))
}

// UpdateRoomFields applies upd when the room matches cond.
func (r *RoomRepository) UpdateRoomFields(ctx context.Context, code string, cond model.RoomCondition, upd model.RoomUpdate) (*model.Room, model.Outcome, error) {
	args := []any{code}
	var sets []string

	set := func(column string, v any, cast string) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d%s", column, len(args), cast))
	}
	if upd.State != nil {
		set("state", upd.State.String(), "")
	}
	if upd.CurrentQuestionIndex != nil {
		set("current_question_index", *upd.CurrentQuestionIndex, "")
	}
	if upd.StartedAt != nil {
		set("started_at", *upd.StartedAt, "")
	}
	if upd.EndedAt != nil {
		set("ended_at", *upd.EndedAt, "")
	}
	if upd.Leaderboard != nil {
		set("leaderboard", upd.Leaderboard, "::jsonb")
	}
	if upd.Winner != nil {
		set("winner", *upd.Winner, "::jsonb")
	}
	if len(sets) == 0 {
		return nil, model.NoMatch, errors.New("update room: no fields to set")
	}

	where := "code = $1"
	if len(cond.States) > 0 {
		args = append(args, model.RoomStateNames(cond.States))
		where += fmt.Sprintf(" AND state = ANY($%d::text[])", len(args))
	}
	if cond.QuestionIndex != nil {
		args = append(args, *cond.QuestionIndex)
		where += fmt.Sprintf(" AND current_question_index = $%d", len(args))
	}

	query := `UPDATE rooms SET ` + strings.Join(sets, ", ") +
		` WHERE ` + where +
		` RETURNING ` + roomColumns

	return conditional(scanRoom(r.pool.QueryRow(ctx, query, args...)))
}
