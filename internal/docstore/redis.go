package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "print-relay:doc:"

// RedisStore is a KV backed by Redis string keys holding JSON documents.
// It shares state across server replicas; it has no secondary index, so it does not implement Store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore returns a KV over client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// OpenRedis parses a redis:// URL, connects, and pings. Caller must Close the client.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("docstore: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("docstore: redis ping: %w", err)
	}
	return client, nil
}

// RedisKey returns the key used for (collection, id).
func RedisKey(collection, id string) string {
	return redisKeyPrefix + collection + ":" + id
}

// Get returns the document, or nil if the key does not exist.
func (s *RedisStore) Get(ctx context.Context, collection, id string) (Document, error) {
	raw, err := s.client.Get(ctx, RedisKey(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("docstore: redis get %s/%s: %w", collection, id, err)
	}
	return decode(raw)
}

// Set writes the document without expiry.
func (s *RedisStore) Set(ctx context.Context, collection, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	if err := s.client.Set(ctx, RedisKey(collection, id), raw, 0).Err(); err != nil {
		return fmt.Errorf("docstore: redis set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes the key.
func (s *RedisStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.client.Del(ctx, RedisKey(collection, id)).Err(); err != nil {
		return fmt.Errorf("docstore: redis delete %s/%s: %w", collection, id, err)
	}
	return nil
}

var _ KV = (*RedisStore)(nil)
