package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leafsii/dsc-ledger/internal/metrics"
	"github.com/leafsii/dsc-ledger/pkg/kv"
	memkv "github.com/leafsii/dsc-ledger/pkg/kv/memory"
	kvredis "github.com/leafsii/dsc-ledger/pkg/kv/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache is the read-through cache and event fan-out used by the service. Values are
// JSON-encoded. When Redis is unreachable at startup it runs on the in-memory kv store
// with an in-process pubsub hub.
type Cache struct {
	// Set only when Redis is available; used for pubsub.
	client  *redis.Client
	kvStore kv.Store
	// In-memory pubsub hub for when Redis is unavailable
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	opt, err := kvredis.ParseOptions(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolSize = 10
	opt.MinIdleConns = 2
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache with local pubsub", "addr", addr, "error", err)
		}
		return NewMemoryCache(logger, metrics), nil
	}

	return &Cache{
		client:  client,
		kvStore: kvredis.NewFromClient(client),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// NewMemoryCache returns a cache that never touches the network.
func NewMemoryCache(logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	return &Cache{
		kvStore:   memkv.NewStore(),
		pubsubHub: NewPubSubHub(),
		logger:    logger,
		metrics:   metrics,
	}
}

// Cache keys and pubsub channels
const (
	KeyPrice   = "dsc:price"
	KeyAccount = "dsc:account"
	KeyMarkets = "dsc:markets"

	ChannelEvents = "dsc:events"
	ChannelAlerts = "dsc:alerts"
)

const (
	accountTTL = 10 * time.Second
	marketsTTL = 3 * time.Second
)

var ErrCacheMiss = errors.New("cache miss")

// KV exposes the underlying key-value store.
func (c *Cache) KV() kv.Store {
	return c.kvStore
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, key)
			}
			return ErrCacheMiss
		}
		if c.logger != nil {
			c.logger.Errorw("Cache get error", "key", key, "error", err)
		}
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.kvStore.Set(ctx, key, data, ttl); err != nil {
		if c.logger != nil {
			c.logger.Errorw("Cache set error", "key", key, "error", err)
		}
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.kvStore.Del(ctx, keys...); err != nil {
		if c.logger != nil {
			c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		}
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.kvStore.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

func PriceKey(feed string) string {
	return KeyPrice + ":" + feed
}

func AccountKey(address string) string {
	return KeyAccount + ":" + address
}

// UserEventsChannel is the per-account event channel.
func UserEventsChannel(address string) string {
	return ChannelEvents + ":" + address
}

func (c *Cache) GetPrice(ctx context.Context, feed string, dest interface{}) error {
	return c.Get(ctx, PriceKey(feed), dest)
}

func (c *Cache) SetPrice(ctx context.Context, feed string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, PriceKey(feed), value, ttl)
}

func (c *Cache) GetAccount(ctx context.Context, address string, dest interface{}) error {
	return c.Get(ctx, AccountKey(address), dest)
}

func (c *Cache) SetAccount(ctx context.Context, address string, value interface{}) error {
	return c.Set(ctx, AccountKey(address), value, accountTTL)
}

func (c *Cache) InvalidateAccounts(ctx context.Context, addresses ...string) error {
	keys := make([]string, 0, len(addresses))
	for _, a := range addresses {
		if a != "" {
			keys = append(keys, AccountKey(a))
		}
	}
	return c.Delete(ctx, keys...)
}

func (c *Cache) GetMarkets(ctx context.Context, dest interface{}) error {
	return c.Get(ctx, KeyMarkets, dest)
}

func (c *Cache) SetMarkets(ctx context.Context, value interface{}) error {
	return c.Set(ctx, KeyMarkets, value, marketsTTL)
}

func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Publish error", "channel", channel, "error", err)
			}
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	c.pubsubHub.Publish(channel, string(data))
	return nil
}

// PublishEvent fans an engine event out to the global channel and to each account's
// own channel.
func (c *Cache) PublishEvent(ctx context.Context, message interface{}, accounts ...string) error {
	if err := c.Publish(ctx, ChannelEvents, message); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(accounts))
	for _, a := range accounts {
		if _, dup := seen[a]; dup || a == "" {
			continue
		}
		seen[a] = struct{}{}
		if err := c.Publish(ctx, UserEventsChannel(a), message); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe listens on channels until ctx is done or the subscription is closed.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	if c.client != nil {
		return newRedisSubscription(ctx, c.client.Subscribe(ctx, channels...))
	}
	return c.pubsubHub.Subscribe(ctx, channels...)
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.kvStore.Ping(ctx)
}

// Close releases the store, and with it the Redis connection.
func (c *Cache) Close() error {
	return c.kvStore.Close()
}
