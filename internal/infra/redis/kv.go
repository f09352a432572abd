package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/pixtracker/internal/store"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the KV.
const DefaultPrefix = "pixtracker:"

// KV stores key-value pairs as plain Redis strings without expiry.
type KV struct {
	client *redis.Client
	prefix string
}

// NewKV wraps client. An empty prefix means DefaultPrefix.
func NewKV(client *redis.Client, prefix string) *KV {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &KV{client: client, prefix: prefix}
}

// Connect dials addr and verifies the connection.
func Connect(ctx context.Context, addr, password, prefix string) (*KV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Connect: ping %s: %w", addr, err)
	}
	return NewKV(client, prefix), nil
}

func (k *KV) key(key string) string {
	return k.prefix + key
}

func (k *KV) Get(ctx context.Context, key string) (string, error) {
	val, err := k.client.Get(ctx, k.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("Get %s: %w", key, err)
	}
	return val, nil
}

func (k *KV) Set(ctx context.Context, key, value string) error {
	if err := k.client.Set(ctx, k.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("Set %s: %w", key, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, key string) error {
	if err := k.client.Del(ctx, k.key(key)).Err(); err != nil {
		return fmt.Errorf("Delete %s: %w", key, err)
	}
	return nil
}

// Close closes the client.
func (k *KV) Close() error {
	return k.client.Close()
}

var _ store.KV = (*KV)(nil)
