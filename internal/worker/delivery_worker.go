package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

const pollTimeout = time.Second // BLPop timeouts below 1s are rejected by Redis

// DeliveryStore persists delivery records.
type DeliveryStore interface {
	Insert(ctx context.Context, rec *model.DeliveryRecord) error
}

// DeliveryWorker consumes persist_deliveries_queue and writes the delivery
// journal to PostgreSQL.
type DeliveryWorker struct {
	store      DeliveryStore
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
}

// NewDeliveryWorker creates a new DeliveryWorker.
func NewDeliveryWorker(store DeliveryStore, rdb *redis.Client, log zerolog.Logger) *DeliveryWorker {
	return &DeliveryWorker{
		store:      store,
		rdb:        rdb,
		log:        log.With().Str("component", "delivery_worker").Logger(),
		retryDelay: 5 * time.Second,
	}
}

// Start begins the worker loop and blocks until ctx is cancelled. Call in a goroutine.
func (w *DeliveryWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *DeliveryWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, pollTimeout, config.WorkerKey.PersistDeliveriesQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			sleep(ctx, w.retryDelay)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	rec, ok := w.decode(result[1])
	if !ok {
		return
	}

	if err := w.store.Insert(ctx, rec); err != nil {
		w.log.Error().Err(err).
			Str("attempt_id", rec.AttemptID).
			Str("outcome", string(rec.Outcome)).
			Msg("Persist error, retrying")
		// Push back to queue for retry.
		w.rdb.RPush(context.WithoutCancel(ctx), config.WorkerKey.PersistDeliveriesQueue, result[1])
		sleep(ctx, w.retryDelay)
	}
}

// drain persists whatever is still queued before shutdown.
func (w *DeliveryWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistDeliveriesQueue).Result()
		if err != nil {
			break
		}

		rec, ok := w.decode(raw)
		if !ok {
			continue
		}
		if err := w.store.Insert(ctx, rec); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistDeliveriesQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

func (w *DeliveryWorker) decode(raw string) (*model.DeliveryRecord, bool) {
	var rec model.DeliveryRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Poison message, dropped.
		w.log.Error().Err(err).Msg("Unmarshal error")
		return nil, false
	}
	return &rec, true
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
