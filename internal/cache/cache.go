package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/recanthology/engine/pkg/models"
)

// Store is the key/value surface the engine caches through. Values are
// serialized as JSON. Implementations must honor TTLs and support explicit
// invalidation; callers treat every error as a cache miss.
type Store interface {
	// Get unmarshals the entry at key into out. Returns false on a miss.
	Get(ctx context.Context, key string, out interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes all keys matching a glob pattern.
	DeletePattern(ctx context.Context, pattern string) error
}

// Key builders. The namespace layout is part of the external contract:
//
//	rec:<kind>:<user_id>                      recommendation results
//	prefs:<kind>:<user_id>                    preference vectors
//	item_sim:<kind>:<item_id>:shrunk:<λ>      similarity lists
//	session:<user_id>                         auth sessions

func RecommendationKey(kind models.ItemKind, userID uuid.UUID) string {
	return fmt.Sprintf("rec:%s:%s", kind, userID)
}

func PreferencesKey(kind models.ItemKind, userID uuid.UUID) string {
	return fmt.Sprintf("prefs:%s:%s", kind, userID)
}

func SimilarityKey(kind models.ItemKind, itemID uuid.UUID, shrinkage float64) string {
	return fmt.Sprintf("item_sim:%s:%s:shrunk:%s", kind, itemID, strconv.FormatFloat(shrinkage, 'g', -1, 64))
}

// SimilarityPattern matches every shrinkage variant for one item.
func SimilarityPattern(kind models.ItemKind, itemID uuid.UUID) string {
	return fmt.Sprintf("item_sim:%s:%s:shrunk:*", kind, itemID)
}

func SessionKey(userID uuid.UUID) string {
	return fmt.Sprintf("session:%s", userID)
}

// RedisStore backs Store with a single go-redis client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string, out interface{}) (bool, error) {
	data, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := s.client.SetEx(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (s *RedisStore) DeletePattern(ctx context.Context, pattern string) error {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return fmt.Errorf("cache scan %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache delete %s: %w", pattern, err)
	}
	return nil
}
