package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel/internal/apperr"
)

// RedisConfig mirrors the original Redis client's configuration. URL,
// KeyPrefix, ConnectTimeout and MaxConnections are applied by
// NewRedisStore; DefaultTTL, EnableHealthChecks and HealthCheckInterval
// are carried but not used (a zero ttl passed to Set means no expiry).
type RedisConfig struct {
	URL                 string
	KeyPrefix           string
	ConnectTimeout      time.Duration
	DefaultTTL          time.Duration
	MaxConnections      int
	EnableHealthChecks  bool
	HealthCheckInterval time.Duration
}

// DefaultRedisConfig returns the same defaults as the original client.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:                 "redis://127.0.0.1:6379",
		KeyPrefix:           "noderr",
		ConnectTimeout:      5 * time.Second,
		DefaultTTL:          time.Hour,
		MaxConnections:      10,
		EnableHealthChecks:  true,
		HealthCheckInterval: time.Minute,
	}
}

// RedisStore is the production Store backed by go-redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// NewRedisStore connects to Redis per cfg and returns a ready Store.
func NewRedisStore(cfg RedisConfig, logger zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "parse redis url", err)
	}
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	if cfg.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.ConnectTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "redis ping failed", err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		log:    logger.With().Str("component", "store.redis").Logger(),
	}, nil
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string, dst any) error {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("key %q", key), err)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "get", err)
	}
	if err := msgpack.Unmarshal(raw, dst); err != nil {
		return apperr.Wrap(apperr.KindStoreError, "decode value", err)
	}
	return nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "encode value", err)
	}
	if err := s.client.Set(ctx, s.key(key), raw, ttl).Err(); err != nil {
		return apperr.Wrap(apperr.KindStoreError, "set", err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	raw, err := msgpack.Marshal(value)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreError, "encode value", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(key), raw, ttl).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreError, "setnx", err)
	}
	return ok, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, s.key(key)).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreError, "delete", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Increment(ctx context.Context, key string, by int64) (int64, error) {
	n, err := s.client.IncrBy(ctx, s.key(key), by).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreError, "incrby", err)
	}
	return n, nil
}

func (s *RedisStore) AddToSet(ctx context.Context, key string, member string) (bool, error) {
	n, err := s.client.SAdd(ctx, s.key(key), member).Result()
	if err != nil {
		return false, apperr.Wrap(apperr.KindStoreError, "sadd", err)
	}
	return n > 0, nil
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.key(key)).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "smembers", err)
	}
	return members, nil
}

func (s *RedisStore) SortedSetAdd(ctx context.Context, key string, member string, score float64) error {
	err := s.client.ZAdd(ctx, s.key(key), &redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "zadd", err)
	}
	return nil
}

func (s *RedisStore) SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]ScoredMember, error) {
	results, err := s.client.ZRangeByScoreWithScores(ctx, s.key(key), &redis.ZRangeBy{
		Min: fmt.Sprintf("%f", min),
		Max: fmt.Sprintf("%f", max),
	}).Result()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "zrangebyscore", err)
	}
	out := make([]ScoredMember, 0, len(results))
	for _, z := range results {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, ScoredMember{Member: member, Score: z.Score})
	}
	return out, nil
}

func (s *RedisStore) SortedSetTrimToRank(ctx context.Context, key string, keepCount int) error {
	if keepCount < 0 {
		keepCount = 0
	}
	// ZRemRangeByRank trims everything below the top keepCount (ranks are
	// 0-indexed ascending by score, so the kept range is the last keepCount).
	err := s.client.ZRemRangeByRank(ctx, s.key(key), 0, int64(-keepCount-1)).Err()
	if err != nil {
		return apperr.Wrap(apperr.KindStoreError, "zremrangebyrank", err)
	}
	return nil
}

func (s *RedisStore) KeysByPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.key(pattern), 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "scan", err)
	}
	return keys, nil
}

func (s *RedisStore) Publish(ctx context.Context, channel string, message any) (int64, error) {
	raw, err := msgpack.Marshal(message)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreError, "encode message", err)
	}
	n, err := s.client.Publish(ctx, s.key(channel), raw).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreError, "publish", err)
	}
	return n, nil
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	pubsub := s.client.Subscribe(ctx, s.key(channel))
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreError, "subscribe", err)
	}
	out := make(chan string, 64)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			out <- msg.Payload
		}
	}()
	return &redisSubscription{pubsub: pubsub, ch: out}, nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.KindStoreError, "health check", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisSubscription struct {
	pubsub *redis.PubSub
	ch     chan string
}

func (r *redisSubscription) Channel() <-chan string { return r.ch }

func (r *redisSubscription) Close() error { return r.pubsub.Close() }
