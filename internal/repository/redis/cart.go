package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/naman3006/E-commerce-sub001/internal/domain"
	"github.com/naman3006/E-commerce-sub001/internal/repository"
	"github.com/naman3006/E-commerce-sub001/pkg/database"
	apperrors "github.com/naman3006/E-commerce-sub001/pkg/errors"
)

const keyPrefix = "cart:"

// CartRepository implements repository.CartStore using Redis.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a new Redis-backed cart repository. A zero ttl
// keeps carts forever.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Load retrieves a cart by owner ID from Redis.
func (r *CartRepository) Load(ctx context.Context, ownerID string) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "LoadCart", "GET "+keyPrefix+"{owner}")
	defer func() { end(repository.TraceError(err)) }()

	data, err := r.client.Get(ctx, keyPrefix+ownerID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", ownerID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var rec repository.CartRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}

	cart, err := repository.FromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("load cart %s: %w", ownerID, err)
	}
	return cart, nil
}

// Save writes the cart under WATCH so that a concurrent writer between the
// version check and the SET aborts the transaction.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) (_ *domain.Cart, err error) {
	ctx, end := database.TraceCommand(ctx, "redis", "SaveCart", "WATCH/MULTI SET "+keyPrefix+"{owner}")
	defer func() { end(repository.TraceError(err)) }()

	key := keyPrefix + cart.OwnerID
	expected := cart.Version

	next := cart.Clone()
	next.Version = expected + 1

	data, err := json.Marshal(repository.ToRecord(next))
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}

	conflict := domain.ConcurrentModification(cart.OwnerID, expected)

	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if stored != expected {
			return conflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, redis.TxFailedErr):
		return nil, conflict
	case errors.Is(err, domain.ErrConcurrentModification):
		return nil, err
	default:
		return nil, fmt.Errorf("redis save cart: %w", err)
	}
}

// Ping checks the Redis connection.
func (r *CartRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// storedVersion reads the version of the stored record, or 0 when none exists.
func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get cart version: %w", err)
	}

	var head struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return 0, fmt.Errorf("unmarshal cart version: %w", err)
	}
	return head.Version, nil
}
