// Package redis keeps short-lived payment state in Redis: the last status
// announced per provider payment and the ids of consumed events.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JRebertt/shortcart-v3/services/payment/internal/domain"
)

const statusKeyPrefix = "payment:status:"

// advanceScript sets KEYS[1] to ARGV[1] when the key is missing or holds
// one of ARGV[3..]. It returns {previous, applied}.
var advanceScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return {"", 1}
end
for i = 3, #ARGV do
	if current == ARGV[i] then
		redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
		return {current, 1}
	end
end
return {current, 0}
`)

// StatusStore implements repository.StatusStore.
type StatusStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewStatusStore(client redis.UniversalClient, ttl time.Duration) *StatusStore {
	return &StatusStore{client: client, ttl: ttl}
}

func statusKey(provider domain.Provider, paymentID string) string {
	return statusKeyPrefix + string(provider) + ":" + paymentID
}

func (s *StatusStore) Get(ctx context.Context, provider domain.Provider, paymentID string) (domain.PaymentStatus, bool, error) {
	v, err := s.client.Get(ctx, statusKey(provider, paymentID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get payment status: %w", err)
	}
	return domain.PaymentStatus(v), true, nil
}

func (s *StatusStore) Set(ctx context.Context, provider domain.Provider, paymentID string, status domain.PaymentStatus) error {
	if err := s.client.Set(ctx, statusKey(provider, paymentID), string(status), s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set payment status: %w", err)
	}
	return nil
}

func (s *StatusStore) Advance(ctx context.Context, provider domain.Provider, paymentID string, next domain.PaymentStatus) (domain.PaymentStatus, bool, error) {
	args := []any{string(next), s.ttl.Milliseconds()}
	for _, from := range domain.Predecessors(next) {
		args = append(args, string(from))
	}

	res, err := advanceScript.Run(ctx, s.client, []string{statusKey(provider, paymentID)}, args...).Slice()
	if err != nil {
		return "", false, fmt.Errorf("redis advance payment status: %w", err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("redis advance payment status: unexpected reply %v", res)
	}
	prev, _ := res[0].(string)
	applied, _ := res[1].(int64)
	return domain.PaymentStatus(prev), applied == 1, nil
}
