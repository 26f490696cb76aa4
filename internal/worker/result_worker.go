package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
)

const (
	ResultBatchSize    = 50
	ResultBatchTimeout = 2 * time.Second
	ResultPollTimeout  = 1 * time.Second
	ResultDrainTimeout = 5 * time.Second
)

// DB is the subset of pgxpool.Pool the worker writes through.
type DB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var resultColumns = []string{
	"room_id", "player_id", "rank", "score", "room_code", "correct_count",
	"answered", "total_questions", "status", "time_to_complete_ms", "is_winner", "settled_at",
}

// ResultWorker moves settled standings from the Redis queue into
// room_results.
type ResultWorker struct {
	db  DB
	rdb *redis.Client
	log zerolog.Logger
}

func NewResultWorker(db DB, rdb *redis.Client, log zerolog.Logger) *ResultWorker {
	return &ResultWorker{
		db:  db,
		rdb: rdb,
		log: log.With().Str("component", "result_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start consumes the queue until ctx is cancelled, then flushes the pending
// batch and drains what is left within ResultDrainTimeout.
func (w *ResultWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ResultWorker started")

	batch := make([]model.RoomResult, 0, ResultBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= ResultBatchSize || time.Since(lastFlush) >= ResultBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining results...")
			drainCtx, cancel := context.WithTimeout(context.Background(), ResultDrainTimeout)
			w.flushSafe(drainCtx, batch)
			w.drain(drainCtx)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, ResultPollTimeout, config.WorkerKey.PersistResultsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(ResultPollTimeout)
				}
				continue
			}
			if len(item) < 2 {
				continue
			}

			if r, ok := w.decode(item[1]); ok {
				batch = append(batch, r)
			}
		}
	}
}

func (w *ResultWorker) decode(raw string) (model.RoomResult, bool) {
	var r model.RoomResult
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		w.log.Error().Err(err).Msg("Invalid JSON payload, dropping")
		return r, false
	}
	return r, true
}

// ----------------------------------------------------------------
// Bulk COPY with per-row fallback
// ----------------------------------------------------------------

func (w *ResultWorker) flushSafe(ctx context.Context, batch []model.RoomResult) {
	if len(batch) == 0 {
		return
	}

	n, err := w.bulkInsert(ctx, batch)
	if err == nil {
		w.log.Debug().Int64("rows", n).Msg("Results persisted")
		return
	}

	// COPY is all-or-nothing, so one duplicate row fails the batch.
	w.log.Warn().Err(err).Int("rows", len(batch)).Msg("Bulk copy failed, using fallback")
	for i := range batch {
		if err := w.persistSingle(ctx, &batch[i]); err != nil {
			w.log.Error().Err(err).
				Str("room_code", batch[i].RoomCode).
				Str("player_id", batch[i].PlayerID).
				Msg("persistSingle failed, requeueing")
			w.requeue(ctx, &batch[i])
		}
	}
}

func (w *ResultWorker) bulkInsert(ctx context.Context, batch []model.RoomResult) (int64, error) {
	return w.db.CopyFrom(ctx,
		pgx.Identifier{"room_results"},
		resultColumns,
		pgx.CopyFromSlice(len(batch), func(i int) ([]any, error) {
			r := batch[i]
			return []any{
				r.RoomID, r.PlayerID, r.Rank, r.Score, r.RoomCode, r.CorrectCount,
				r.Answered, r.TotalQuestions, r.Status, r.TimeToCompleteMs, r.IsWinner, r.EndedAt,
			}, nil
		}),
	)
}

// persistSingle inserts one row. A row already stored by an earlier attempt
// is left untouched.
func (w *ResultWorker) persistSingle(ctx context.Context, r *model.RoomResult) error {
	_, err := w.db.Exec(ctx,
		`INSERT INTO room_results (room_id, player_id, rank, score, room_code, correct_count,
		                           answered, total_questions, status, time_to_complete_ms, is_winner, settled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (room_id, player_id) DO NOTHING`,
		r.RoomID, r.PlayerID, r.Rank, r.Score, r.RoomCode, r.CorrectCount,
		r.Answered, r.TotalQuestions, r.Status, r.TimeToCompleteMs, r.IsWinner, r.EndedAt,
	)
	return err
}

func (w *ResultWorker) requeue(ctx context.Context, r *model.RoomResult) {
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := w.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, raw).Err(); err != nil {
		w.log.Error().Err(err).Str("room_code", r.RoomCode).Msg("Requeue failed, result lost")
	}
}

// drain persists whatever is still queued, stopping at the first failure or
// when ctx expires.
func (w *ResultWorker) drain(ctx context.Context) {
	drained := 0
	for ctx.Err() == nil {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistResultsQueue).Result()
		if err != nil {
			break
		}
		r, ok := w.decode(raw)
		if !ok {
			continue
		}
		if err := w.persistSingle(ctx, &r); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.requeue(context.Background(), &r)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining results")
	}
}
