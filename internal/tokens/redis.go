// Package tokens issues and resolves booking-session tokens. Redis is the
// primary backend; the sqlite store takes over when redis is unreachable so
// a cache outage never blocks bookings.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sanuj5/challenge-box-cricket-wa/internal/booking"
	"github.com/sanuj5/challenge-box-cricket-wa/internal/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "flowtoken:"

// RedisStore keeps flow tokens in redis with the token TTL applied natively.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Save(ctx context.Context, t *models.FlowToken) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal flow token: %w", err)
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("flow token %s already expired", t.Token)
	}
	if err := r.client.Set(ctx, keyPrefix+t.Token, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", booking.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *RedisStore) Lookup(ctx context.Context, token string) (*models.FlowToken, error) {
	data, err := r.client.Get(ctx, keyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", booking.ErrStorageUnavailable, err)
	}
	var t models.FlowToken
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("unmarshal flow token: %w", err)
	}
	return &t, nil
}

// Purge is a no-op for redis, which expires keys natively.
func (r *RedisStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
