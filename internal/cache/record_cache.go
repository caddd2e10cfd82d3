// Package cache keeps recently read prescription records in Redis in front of
// the primary store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/medlens/rxchat/backend/internal/logging"
	"github.com/medlens/rxchat/backend/internal/model/prescription"
)

const keyPrefix = "rxchat:prescription:"

// RecordCache decorates a prescription.Store with a read-through Redis cache.
// Redis failures are logged and the call falls back to the store.
type RecordCache struct {
	store  prescription.Store
	client redis.UniversalClient
	ttl    time.Duration
	logger zerolog.Logger
}

var _ prescription.Store = (*RecordCache)(nil)

// NewClient builds a Redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRecordCache(store prescription.Store, client redis.UniversalClient, ttl time.Duration) *RecordCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RecordCache{
		store:  store,
		client: client,
		ttl:    ttl,
		logger: logging.Component("cache"),
	}
}

func (c *RecordCache) Create(ctx context.Context, normalizedText string) (prescription.Record, error) {
	record, err := c.store.Create(ctx, normalizedText)
	if err != nil {
		return record, err
	}
	c.put(ctx, record)
	return record, nil
}

func (c *RecordCache) List(ctx context.Context) ([]prescription.Summary, error) {
	return c.store.List(ctx)
}

func (c *RecordCache) Get(ctx context.Context, id string) (prescription.Record, error) {
	raw, err := c.client.Get(ctx, keyPrefix+id).Bytes()
	switch {
	case err == nil:
		var record prescription.Record
		if jsonErr := json.Unmarshal(raw, &record); jsonErr == nil {
			return record, nil
		}
		c.logger.Warn().Str("id", id).Msg("discarding undecodable cache entry")
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn().Err(err).Str("id", id).Msg("redis read failed, falling back to store")
	}

	record, err := c.store.Get(ctx, id)
	if err != nil {
		return record, err
	}
	c.put(ctx, record)
	return record, nil
}

// Ping reports the health of the primary store only; the cache is optional.
func (c *RecordCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("redis ping failed")
	}
	return c.store.Ping(ctx)
}

func (c *RecordCache) put(ctx context.Context, record prescription.Record) {
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+record.ID, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("id", record.ID).Msg("redis write failed")
	}
}
