package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultStateTTL = 30 * time.Minute
	defaultCartTTL  = 15 * time.Minute
)

func NewRedisCache(client *redis.Client, stateTTL time.Duration) *RedisCache {
	if stateTTL <= 0 {
		stateTTL = DefaultStateTTL
	}
	return &RedisCache{
		client:   client,
		stateTTL: stateTTL,
		cartTTL:  defaultCartTTL,
	}
}

type RedisCache struct {
	client   *redis.Client
	stateTTL time.Duration
	cartTTL  time.Duration
}

// GetState returns ErrCacheMiss when the review has expired or was never taken.
func (r *RedisCache) GetState(ctx context.Context, userID int64) (*domain.CheckoutState, error) {
	var state domain.CheckoutState
	if err := r.get(ctx, stateKey(userID), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// SetState overwrites the user's previous state; the TTL restarts on each review.
func (r *RedisCache) SetState(ctx context.Context, state *domain.CheckoutState) error {
	return r.set(ctx, stateKey(state.UserID), state, r.stateTTL)
}

func (r *RedisCache) DeleteState(ctx context.Context, userID int64) error {
	return r.del(ctx, stateKey(userID))
}

func (r *RedisCache) GetCart(ctx context.Context, userID int64) ([]domain.CartLine, error) {
	var lines []domain.CartLine
	if err := r.get(ctx, cartKey(userID), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *RedisCache) SetCart(ctx context.Context, userID int64, lines []domain.CartLine) error {
	jitter := time.Duration(rand.Intn(5)) * time.Minute
	return r.set(ctx, cartKey(userID), lines, r.cartTTL+jitter)
}

func (r *RedisCache) DeleteCart(ctx context.Context, userID int64) error {
	return r.del(ctx, cartKey(userID))
}

func (r *RedisCache) get(ctx context.Context, key string, dst any) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (r *RedisCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) del(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func stateKey(userID int64) string {
	return fmt.Sprintf("checkout:%d", userID)
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}
