package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/leafsii/dsc-ledger/pkg/kv"
	"github.com/redis/go-redis/v9"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

// IsConnectionError reports whether err means Redis could not be reached.
func IsConnectionError(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "broken pipe", "no such host", "connection closed", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionError(err) {
		return fmt.Errorf("%w: %v", kv.ErrBackendUnavailable, err)
	}
	if strings.HasPrefix(err.Error(), "WRONGTYPE") {
		return fmt.Errorf("%w: %v", kv.ErrWrongType, err)
	}
	return err
}

// ParseOptions accepts a redis:// URL or a bare host:port.
func ParseOptions(redisURL string) (*redis.Options, error) {
	if strings.Contains(redisURL, "://") {
		return redis.ParseURL(redisURL)
	}
	return &redis.Options{Addr: redisURL}, nil
}

// New creates a new Redis-backed store. The connection is verified by the caller.
func New(redisURL string) (*Store, error) {
	opt, err := ParseOptions(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second

	return &Store{client: redis.NewClient(opt)}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	var expiration time.Duration
	if len(ttl) > 0 {
		expiration = ttl[0]
	}
	return wrap(s.client.Set(ctx, key, value, expiration).Err())
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, kv.ErrNotFound
		}
		return nil, wrap(err)
	}
	return result, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Del(ctx, keys...).Result()
	return n, wrap(err)
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	n, err := s.client.Exists(ctx, keys...).Result()
	return n, wrap(err)
}

func (s *Store) IncrBy(ctx context.Context, key string, n int64) (int64, error) {
	v, err := s.client.IncrBy(ctx, key, n).Result()
	return v, wrap(err)
}

func (s *Store) RPush(ctx context.Context, key string, values ...[]byte) (int64, error) {
	args := make([]interface{}, len(values))
	for i, value := range values {
		args[i] = value
	}
	n, err := s.client.RPush(ctx, key, args...).Result()
	return n, wrap(err)
}

func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	result, err := s.client.LRange(ctx, key, start, stop).Result()
	if err != nil {
		return nil, wrap(err)
	}
	values := make([][]byte, len(result))
	for i, value := range result {
		values[i] = []byte(value)
	}
	return values, nil
}

func (s *Store) LLen(ctx context.Context, key string) (int64, error) {
	n, err := s.client.LLen(ctx, key).Result()
	return n, wrap(err)
}

func (s *Store) LTrim(ctx context.Context, key string, start, stop int64) error {
	return wrap(s.client.LTrim(ctx, key, start, stop).Err())
}

// Ping checks if Redis is reachable
func (s *Store) Ping(ctx context.Context) error {
	return wrap(s.client.Ping(ctx).Err())
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}
