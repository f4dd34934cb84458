package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "servicedesk:monitor"
	versionKey = keyPrefix + ":version"
)

// MonitorCache keeps rendered ATM monitor responses. Entries are keyed by a
// version counter, so bumping the version on ingest orphans every older entry
// and the TTL reclaims them.
type MonitorCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMonitorCache(client *redis.Client, ttl time.Duration) *MonitorCache {
	return &MonitorCache{client: client, ttl: ttl}
}

func entryKey(version int64, query string) string {
	return fmt.Sprintf("%s:v%d:%s", keyPrefix, version, query)
}

// Get returns the cached body for query and the key to store under on a miss.
// Redis failures are treated as misses.
func (c *MonitorCache) Get(ctx context.Context, query string) (string, []byte, bool) {
	if c == nil || c.client == nil || c.ttl <= 0 {
		return "", nil, false
	}
	version, err := c.client.Get(ctx, versionKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("monitor cache version error: %v", err)
		return "", nil, false
	}
	key := entryKey(version, query)
	body, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("monitor cache get error key=%s: %v", key, err)
		}
		return key, nil, false
	}
	return key, body, true
}

func (c *MonitorCache) Put(ctx context.Context, key string, body []byte) {
	if c == nil || c.client == nil || c.ttl <= 0 || key == "" {
		return
	}
	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		log.Printf("monitor cache set error key=%s: %v", key, err)
	}
}

func (c *MonitorCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey).Err()
}
