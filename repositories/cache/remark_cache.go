// Package cache puts a Redis read-through cache in front of a remark store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/models"
	"github.com/upb/freelance-marketplace/backend/repositories"
)

const keyPrefix = "deletion_remark:"

// CachedRemarkRepository caches remarks by id. Remarks are never updated,
// so a cached entry cannot go stale; the TTL only bounds memory.
// Cache failures are logged and the inner repository answers instead.
type CachedRemarkRepository struct {
	inner  repositories.DeletionRemarkRepository
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedRemarkRepository wraps inner with a Redis cache
func NewCachedRemarkRepository(inner repositories.DeletionRemarkRepository, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) repositories.DeletionRemarkRepository {
	return &CachedRemarkRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Insert stores the remark and primes the cache
func (c *CachedRemarkRepository) Insert(ctx context.Context, remark *models.DeletionRemark) error {
	if err := c.inner.Insert(ctx, remark); err != nil {
		return err
	}
	c.store(ctx, remark)
	return nil
}

// GetByID serves from cache, falling back to the inner repository
func (c *CachedRemarkRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeletionRemark, error) {
	data, err := c.client.Get(ctx, key(id)).Bytes()
	switch {
	case err == nil:
		var remark models.DeletionRemark
		jsonErr := json.Unmarshal(data, &remark)
		if jsonErr == nil {
			return &remark, nil
		}
		c.logger.Warn("discarding undecodable cache entry", zap.String("id", id.String()), zap.Error(jsonErr))
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("remark cache read failed", zap.String("id", id.String()), zap.Error(err))
	}

	remark, err := c.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, remark)
	return remark, nil
}

// List always reads through; result sets grow as remarks arrive.
func (c *CachedRemarkRepository) List(ctx context.Context, filter repositories.RemarkFilter) ([]*models.DeletionRemark, error) {
	return c.inner.List(ctx, filter)
}

// WithTx returns the inner repository bound to tx, uncached, so a rolled
// back insert never reaches the cache.
func (c *CachedRemarkRepository) WithTx(tx repositories.Transaction) repositories.DeletionRemarkRepository {
	return c.inner.WithTx(tx)
}

func (c *CachedRemarkRepository) store(ctx context.Context, remark *models.DeletionRemark) {
	data, err := json.Marshal(remark)
	if err != nil {
		c.logger.Warn("failed to encode remark for cache", zap.String("id", remark.ID.String()), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key(remark.ID), data, c.ttl).Err(); err != nil {
		c.logger.Warn("remark cache write failed", zap.String("id", remark.ID.String()), zap.Error(err))
	}
}

func key(id uuid.UUID) string {
	return keyPrefix + id.String()
}
