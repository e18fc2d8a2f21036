package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "stock:version"
	bumpChannel     = "stock.bump"
)

// LevelCache wraps Redis based caching of stock level reads with versioning
// controls. Every committed ledger mutation bumps the global version, so a
// cached level is never older than the last write anywhere in the system.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLevelCache instantiates the cache helper.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	return &LevelCache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *LevelCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// FetchLevel loads a cached level or populates it using the loader.
func (c *LevelCache) FetchLevel(ctx context.Context, productID, warehouseID uuid.UUID, loader func(context.Context) (StockLevel, error)) (StockLevel, error) {
	if loader == nil {
		return StockLevel{}, errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.buildKey(ctx, keyLevel(productID, warehouseID))
	if err != nil {
		return StockLevel{}, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var level StockLevel
		if err := json.Unmarshal(payload, &level); err == nil {
			return level, nil
		}
		// Fall through and reload on a corrupt entry.
	} else if err != redis.Nil {
		return StockLevel{}, err
	}
	level, err := loader(ctx)
	if err != nil {
		return StockLevel{}, err
	}
	raw, err := json.Marshal(level)
	if err != nil {
		return StockLevel{}, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// Bump invalidates cached levels by incrementing the global version and
// publishing the new version for other instances.
func (c *LevelCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation subscribes to version bump notifications.
func (c *LevelCache) ListenForInvalidation(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload != "" {
					if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
						_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
						continue
					}
				}
				_ = c.client.Incr(ctx, cacheVersionKey).Err()
			}
		}
	}()
	return nil
}

func (c *LevelCache) buildKey(ctx context.Context, base string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", base, ver), nil
}

func keyLevel(productID, warehouseID uuid.UUID) string {
	return strings.Join([]string{"stock", "level", productID.String(), warehouseID.String()}, ":")
}
