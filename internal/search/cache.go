package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// EmbeddingCache reuses embedding vectors for repeated queries. Misses and
// backend failures are equivalent; the cache is never load-bearing.
type EmbeddingCache interface {
	Get(ctx context.Context, query string) ([]float32, bool)
	Set(ctx context.Context, query string, vector []float32)
}

// RedisCache stores query embeddings in Redis keyed by a hash of the model
// and query text.
type RedisCache struct {
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisCache wires a query-embedding cache. ttl <= 0 defaults to one hour.
func NewRedisCache(client *redis.Client, model string, ttl time.Duration, logger *log.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	return &RedisCache{client: client, model: model, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(query string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + query))
	return "recipegen:embedding:" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, query string) ([]float32, bool) {
	data, err := c.client.Get(ctx, c.key(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("error: embedding cache get: %v", err)
		}
		return nil, false
	}
	var vector []float32
	if err := json.Unmarshal(data, &vector); err != nil {
		c.logger.Printf("error: embedding cache decode: %v", err)
		return nil, false
	}
	return vector, true
}

func (c *RedisCache) Set(ctx context.Context, query string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(query), data, c.ttl).Err(); err != nil {
		c.logger.Printf("error: embedding cache set: %v", err)
	}
}
