package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// DefinitionSource is anything that can load a test definition.
type DefinitionSource interface {
	GetTest(ctx context.Context, testID string) (*model.TestDefinition, error)
}

// CachedDefinitions puts a Redis read-through cache in front of a
// DefinitionSource. Cache faults never fail a load; they fall through to
// the source.
type CachedDefinitions struct {
	source DefinitionSource
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedDefinitions creates a new CachedDefinitions.
func NewCachedDefinitions(source DefinitionSource, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedDefinitions {
	return &CachedDefinitions{
		source: source,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "definition_cache").Logger(),
	}
}

// GetTest serves testID from the cache, loading and storing it on a miss.
func (c *CachedDefinitions) GetTest(ctx context.Context, testID string) (*model.TestDefinition, error) {
	key := config.CacheKey.TestDefinitionKey(testID)

	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var def model.TestDefinition
		if jsonErr := json.Unmarshal(data, &def); jsonErr == nil {
			def.Reindex()
			return &def, nil
		}
		c.log.Warn().Str("test_id", testID).Msg("Corrupt cached definition, reloading")
	case !errors.Is(err, redis.Nil):
		c.log.Warn().Err(err).Str("test_id", testID).Msg("Definition cache read failed")
	}

	def, err := c.source.GetTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	if err := c.store(ctx, key, def); err != nil {
		c.log.Warn().Err(err).Str("test_id", testID).Msg("Definition cache write failed")
	}
	return def, nil
}

// Invalidate drops the cached copy of testID.
func (c *CachedDefinitions) Invalidate(ctx context.Context, testID string) error {
	return c.rdb.Del(ctx, config.CacheKey.TestDefinitionKey(testID)).Err()
}

func (c *CachedDefinitions) store(ctx context.Context, key string, def *model.TestDefinition) error {
	data, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return c.rdb.Set(ctx, key, data, c.ttl).Err()
}
