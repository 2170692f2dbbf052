// Package redis provides a Redis-backed content store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/redis/go-redis/v9"

	"hivemind/internal/metrics"
	"hivemind/internal/platform/cas"
)

const backendName = "redis"

// Store keeps content under <prefix>content:<cid> and refs under
// <prefix>ref:<name>. Content keys never expire.
type Store struct {
	client *redis.Client
	prefix string
}

// New creates a new Redis-backed content store and checks the connection.
func New(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connect to redis: %w", cas.ErrStoreUnavailable, err)
	}

	return NewWithClient(client), nil
}

// NewWithClient creates a store from an existing Redis client.
func NewWithClient(client *redis.Client) *Store {
	return &Store{
		client: client,
		prefix: "hivemind:",
	}
}

func (s *Store) contentKey(id cid.Cid) string {
	return s.prefix + "content:" + id.String()
}

func (s *Store) refKey(name string) string {
	return s.prefix + "ref:" + name
}

func (s *Store) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	id, err := cas.Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	err = s.client.SetNX(ctx, s.contentKey(id), data, 0).Err()
	metrics.IncStoreOp(backendName, "put", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: put %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	data, err := s.client.Get(ctx, s.contentKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncStoreOp(backendName, "get", nil)
		return nil, fmt.Errorf("%w: %s", cas.ErrContentNotFound, id)
	}
	metrics.IncStoreOp(backendName, "get", err)
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %w", cas.ErrStoreUnavailable, id, err)
	}
	return data, nil
}

func (s *Store) SetRef(ctx context.Context, name string, id cid.Cid) error {
	err := s.client.Set(ctx, s.refKey(name), id.String(), 0).Err()
	metrics.IncStoreOp(backendName, "set_ref", err)
	if err != nil {
		return fmt.Errorf("%w: set ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	return nil
}

func (s *Store) Ref(ctx context.Context, name string) (cid.Cid, error) {
	raw, err := s.client.Get(ctx, s.refKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return cid.Undef, fmt.Errorf("%w: %s", cas.ErrRefNotFound, name)
	}
	metrics.IncStoreOp(backendName, "ref", err)
	if err != nil {
		return cid.Undef, fmt.Errorf("%w: ref %s: %w", cas.ErrStoreUnavailable, name, err)
	}
	return cas.Parse(raw)
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", cas.ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
