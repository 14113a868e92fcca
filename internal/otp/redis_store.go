package otp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound reports a sid with no pending challenge.
var ErrNotFound = errors.New("challenge not found")

// RedisStore keeps pending challenges in Redis with a TTL matching the
// challenge expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisStore{client: client, prefix: "otp:"}, nil
}

func (s *RedisStore) key(sid string) string {
	return s.prefix + sid
}

func (s *RedisStore) Save(ctx context.Context, sid string, challenge Challenge) error {
	jsonData, err := json.Marshal(challenge)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}

	ttl := time.Until(challenge.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Minute
	}

	if err := s.client.Set(ctx, s.key(sid), jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sid string) (Challenge, error) {
	jsonData, err := s.client.Get(ctx, s.key(sid)).Result()
	if err == redis.Nil {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("lookup challenge: %w", err)
	}

	var challenge Challenge
	if err := json.Unmarshal([]byte(jsonData), &challenge); err != nil {
		return Challenge{}, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return challenge, nil
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
