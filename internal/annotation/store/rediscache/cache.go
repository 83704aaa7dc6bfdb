// Package rediscache wraps an annotation store with a Redis read-through
// cache. Saves write through and drop the cached entry so readers never see
// a stale version for longer than one round trip.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"flatmaps/internal/annotation/models"
	"flatmaps/internal/annotation/store"
)

const annotationKeyPrefix = "fa:feature:"

// Cache is a read-through decorator over another store. Cache failures are
// logged and degraded around, never surfaced: the backing store stays the
// source of truth.
type Cache struct {
	inner  store.Store
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// New wraps inner with a Redis cache.
func New(inner store.Store, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) Fetch(ctx context.Context, featureID string) (*models.FeatureAnnotation, error) {
	key := annotationKeyPrefix + featureID

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var a models.FeatureAnnotation
		if jsonErr := json.Unmarshal(raw, &a); jsonErr == nil {
			return &a, nil
		}
		// Corrupt cache entry: drop it and fall through to the store.
		_ = c.client.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "annotation cache read failed",
			"feature_id", featureID,
			"error", err,
		)
	}

	a, err := c.inner.Fetch(ctx, featureID)
	if err != nil {
		return nil, err
	}

	if raw, jsonErr := json.Marshal(a); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, raw, c.ttl).Err(); setErr != nil {
			c.logger.WarnContext(ctx, "annotation cache write failed",
				"feature_id", featureID,
				"error", setErr,
			)
		}
	}
	return a, nil
}

func (c *Cache) Save(ctx context.Context, featureID string, comments []models.Comment, expectedVersion int64) (int64, error) {
	version, err := c.inner.Save(ctx, featureID, comments, expectedVersion)
	if err != nil {
		return 0, err
	}
	// Invalidate rather than repopulate; the next Fetch reloads the
	// authoritative row.
	if delErr := c.client.Del(ctx, annotationKeyPrefix+featureID).Err(); delErr != nil {
		c.logger.WarnContext(ctx, "annotation cache invalidation failed",
			"feature_id", featureID,
			"error", delErr,
		)
	}
	return version, nil
}
