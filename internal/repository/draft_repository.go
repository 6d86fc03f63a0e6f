package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DraftRepository keeps attempt drafts in Redis. A draft outlives the
// attempt's remaining time by a grace period, then expires on its own.
type DraftRepository struct {
	rdb   *redis.Client
	grace time.Duration
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(rdb *redis.Client, grace time.Duration) *DraftRepository {
	return &DraftRepository{rdb: rdb, grace: grace}
}

// Save overwrites the student's draft for the snapshot's test.
func (r *DraftRepository) Save(ctx context.Context, snap model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal draft: %w", err)
	}

	ttl := time.Duration(snap.State.RemainingSeconds)*time.Second + r.grace
	key := config.CacheKey.AttemptDraftKey(snap.TestID, snap.StudentID)
	if err := r.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// Load returns the student's draft, or nil when there is none.
func (r *DraftRepository) Load(ctx context.Context, testID string, studentID int) (*model.Snapshot, error) {
	data, err := r.rdb.Get(ctx, config.CacheKey.AttemptDraftKey(testID, studentID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("load draft: %w", err)
	}

	var snap model.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal draft: %w", err)
	}
	return &snap, nil
}

// Delete removes the student's draft. Deleting a missing draft is not an error.
func (r *DraftRepository) Delete(ctx context.Context, testID string, studentID int) error {
	if err := r.rdb.Del(ctx, config.CacheKey.AttemptDraftKey(testID, studentID)).Err(); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
