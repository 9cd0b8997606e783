package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
)

const cacheKeyPrefix = "mirror:fetch:"

// CachedReader serves repeated reads from Redis. Only successful reads are
// cached. Redis failures fall through to the wrapped reader.
type CachedReader struct {
	next   Reader
	client redis.Cmdable
	ttl    time.Duration
	log    logger.Logger
}

// NewCachedReader wraps next with a Redis cache whose entries live for ttl.
func NewCachedReader(next Reader, client redis.Cmdable, ttl time.Duration, log logger.Logger) *CachedReader {
	if log == nil {
		log = logger.NewNop()
	}
	return &CachedReader{next: next, client: client, ttl: ttl, log: log}
}

// CacheKey returns the Redis key used for url.
func CacheKey(url string, loadScripts bool) string {
	sum := sha256.Sum256([]byte(url))
	key := cacheKeyPrefix + hex.EncodeToString(sum[:])
	if loadScripts {
		key += ":scripts"
	}
	return key
}

// Read implements Reader.
func (c *CachedReader) Read(ctx context.Context, url string, loadScripts bool) ([]byte, error) {
	key := CacheKey(url, loadScripts)

	cached, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.log.Debug("Fetch cache hit", logger.String("url", url))
		return cached, nil
	case !errors.Is(err, redis.Nil):
		c.log.Warn("Fetch cache read failed", logger.String("url", url), logger.Error(err))
	}

	body, err := c.next.Read(ctx, url, loadScripts)
	if err != nil {
		return nil, err
	}

	if setErr := c.client.Set(ctx, key, body, c.ttl).Err(); setErr != nil {
		c.log.Warn("Fetch cache write failed", logger.String("url", url), logger.Error(setErr))
	}

	return body, nil
}

// Probe implements Prober. A cached body counts as reachable.
func (c *CachedReader) Probe(ctx context.Context, url string) error {
	n, err := c.client.Exists(ctx, CacheKey(url, false)).Result()
	if err == nil && n > 0 {
		return nil
	}
	return Probe(ctx, c.next, url)
}
