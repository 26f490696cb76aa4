package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizroom/internal/config"
	"github.com/stemsi/quizroom/internal/model"
)

// ResultQueue pushes settled standings onto the persistence queue consumed
// by worker.ResultWorker.
type ResultQueue struct {
	rdb *redis.Client
}

// NewResultQueue creates a new ResultQueue.
func NewResultQueue(rdb *redis.Client) *ResultQueue {
	return &ResultQueue{rdb: rdb}
}

// EnqueueResults queues one record per leaderboard entry of room.
func (q *ResultQueue) EnqueueResults(ctx context.Context, room *model.Room) error {
	results := room.Results()
	if len(results) == 0 {
		return nil
	}

	values := make([]interface{}, len(results))
	for i, r := range results {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		values[i] = data
	}

	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, values...).Err(); err != nil {
		return fmt.Errorf("enqueue results: %w", err)
	}
	return nil
}
