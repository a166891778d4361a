package rejoin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ipg-server/internal/shared/redis"
)

const keyPrefix = "ipg:rejoin:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, code string, ticket Ticket, ttl time.Duration) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("failed to encode rejoin ticket: %w", err)
	}
	return s.client.Set(ctx, keyPrefix+code, data, ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, code string) (Ticket, bool, error) {
	data, err := s.client.Get(ctx, keyPrefix+code).Bytes()
	if err == goredis.Nil {
		return Ticket{}, false, nil
	}
	if err != nil {
		return Ticket{}, false, err
	}

	var ticket Ticket
	if err := json.Unmarshal(data, &ticket); err != nil {
		return Ticket{}, false, fmt.Errorf("failed to decode rejoin ticket: %w", err)
	}
	return ticket, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, code string) error {
	return s.client.Del(ctx, keyPrefix+code).Err()
}
