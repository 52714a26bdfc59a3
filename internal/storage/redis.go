package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xaenox/kontify-triage/internal/models"
)

const (
	redisLeadsKey  = "kontify:leads"
	redisLeadsKeep = 1000
)

// RedisStorage keeps session blobs as plain string keys with an optional
// expiry and leads as a capped list, newest first.
type RedisStorage struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStorage parses a redis:// URL. A zero ttl keeps keys forever.
func NewRedisStorage(ctx context.Context, url string, ttl time.Duration) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStorageFromClient(client, ttl), nil
}

func NewRedisStorageFromClient(client *redis.Client, ttl time.Duration) *RedisStorage {
	return &RedisStorage{client: client, ttl: ttl}
}

func (s *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStorage) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %q: %w", key, err)
	}
	return nil
}

func (s *RedisStorage) SaveLead(ctx context.Context, lead *models.Lead) error {
	raw, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, redisLeadsKey, raw)
	pipe.LTrim(ctx, redisLeadsKey, 0, redisLeadsKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save lead: %w", err)
	}
	return nil
}

func (s *RedisStorage) RecentLeads(ctx context.Context, limit int) ([]*models.Lead, error) {
	raws, err := s.client.LRange(ctx, redisLeadsKey, 0, int64(normalizeLimit(limit)-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list leads: %w", err)
	}
	leads := make([]*models.Lead, 0, len(raws))
	for _, raw := range raws {
		var lead models.Lead
		if err := json.Unmarshal([]byte(raw), &lead); err != nil {
			return nil, fmt.Errorf("decode lead: %w", err)
		}
		leads = append(leads, &lead)
	}
	return leads, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}
