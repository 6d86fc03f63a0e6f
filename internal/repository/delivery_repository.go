package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DeliveryRepository persists the delivery journal in PostgreSQL.
type DeliveryRepository struct {
	pool *pgxpool.Pool
}

// NewDeliveryRepository creates a new DeliveryRepository.
func NewDeliveryRepository(pool *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{pool: pool}
}

// Insert writes one delivery record.
func (r *DeliveryRepository) Insert(ctx context.Context, rec *model.DeliveryRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_deliveries
		   (attempt_id, test_id, student_id, trigger, outcome, result_id, error, answer_count, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)`,
		rec.AttemptID, rec.TestID, rec.StudentID, string(rec.Trigger), string(rec.Outcome),
		rec.ResultID, rec.Error, rec.AnswerCount, rec.DeliveredAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// DeliveryQueue hands delivery records to the persist worker through Redis,
// keeping database writes off the session's path.
type DeliveryQueue struct {
	rdb *redis.Client
}

// NewDeliveryQueue creates a new DeliveryQueue.
func NewDeliveryQueue(rdb *redis.Client) *DeliveryQueue {
	return &DeliveryQueue{rdb: rdb}
}

// RecordDelivery enqueues rec for persistence.
func (q *DeliveryQueue) RecordDelivery(ctx context.Context, rec model.DeliveryRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal delivery: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistDeliveriesQueue, data).Err(); err != nil {
		return fmt.Errorf("enqueue delivery: %w", err)
	}
	return nil
}
