package cart

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// addItemScript increments one field and drops it when the result is no longer positive.
var addItemScript = redis.NewScript(`
local qty = redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
if qty <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  qty = 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('PEXPIRE', KEYS[1], ttl)
end
return qty
`)

// RedisStore guarda o carrinho num hash cart:<userID>
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore cria uma nova instância de RedisStore; ttl 0 desliga a expiração
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
	}
}

func (s *RedisStore) AddItem(ctx context.Context, userID, productID int64, delta int) (int, error) {
	key := cartKey(userID)
	qty, err := addItemScript.Run(ctx, s.client, []string{key},
		strconv.FormatInt(productID, 10), delta, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("redis add item failed: %w", err)
	}
	return qty, nil
}

func (s *RedisStore) SetItem(ctx context.Context, userID, productID int64, quantity int) error {
	key := cartKey(userID)
	field := strconv.FormatInt(productID, 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if quantity <= 0 {
			pipe.HDel(ctx, key, field)
		} else {
			pipe.HSet(ctx, key, field, quantity)
		}
		if s.ttl > 0 {
			pipe.PExpire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set item failed: %w", err)
	}
	return nil
}

// GetCart returns an empty cart when the key does not exist. Fields that do not hold a
// positive integer are ignored.
func (s *RedisStore) GetCart(ctx context.Context, userID int64) (Cart, error) {
	values, err := s.client.HGetAll(ctx, cartKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get cart failed: %w", err)
	}

	cart := make(Cart, len(values))
	for field, value := range values {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.Atoi(value)
		if err != nil || qty <= 0 {
			continue
		}
		cart[productID] = qty
	}
	return cart, nil
}

func (s *RedisStore) Clear(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis clear cart failed: %w", err)
	}
	return nil
}

func cartKey(userID int64) string {
	return fmt.Sprintf("cart:%d", userID)
}
