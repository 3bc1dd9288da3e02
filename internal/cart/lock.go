package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrCheckoutInProgress = errors.New("cart: checkout already in progress")

// releaseScript só remove o lock se ele ainda pertence a quem o adquiriu
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// CheckoutLock serializa os checkouts de um mesmo usuário
type CheckoutLock struct {
	client redis.UniversalClient
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewCheckoutLock cria uma nova instância de CheckoutLock.
// ttl limita quanto tempo um lock esquecido sobrevive; wait é quanto Acquire espera.
func NewCheckoutLock(client redis.UniversalClient, ttl, wait time.Duration) *CheckoutLock {
	return &CheckoutLock{
		client: client,
		ttl:    ttl,
		wait:   wait,
		retry:  50 * time.Millisecond,
	}
}

// Acquire blocks until the user's checkout lock is free or wait elapses, in which case it
// returns ErrCheckoutInProgress. The returned release func is safe to call once the lock
// has expired and been taken by someone else.
func (l *CheckoutLock) Acquire(ctx context.Context, userID int64) (func(context.Context) error, error) {
	key := fmt.Sprintf("checkout:lock:%d", userID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis acquire checkout lock failed: %w", err)
		}
		if ok {
			release := func(ctx context.Context) error {
				if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
					return fmt.Errorf("redis release checkout lock failed: %w", err)
				}
				return nil
			}
			return release, nil
		}

		if !time.Now().Before(deadline) {
			return nil, ErrCheckoutInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
}
