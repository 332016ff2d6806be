package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrTooMuchContention is returned when an optimistic update keeps losing the
// race against concurrent writers.
var ErrTooMuchContention = errors.New("blobstore: too much contention on key")

const maxUpdateRetries = 16

// Store keeps named JSON blobs in Redis under a common namespace. The pending
// metadata queue and the stats checkpoint are each a single blob.
type Store struct {
	Redis     redis.UniversalClient
	Namespace string
}

// Create blob store on top of a Redis connection
func NewStore(namespace string, redisCl redis.UniversalClient) *Store {
	return &Store{
		Namespace: namespace,
		Redis:     redisCl,
	}
}

func (s *Store) fullKey(key string) string {
	return s.Namespace + ":" + key
}

// Load unmarshals the blob under key into v. A missing or expired blob returns
// (false, nil) and leaves v untouched.
func (s *Store) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.Redis.Get(ctx, s.fullKey(key)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load blob %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode blob %q: %w", key, err)
	}
	return true, nil
}

// Save marshals v and stores it under key. A ttl of 0 stores without expiry.
func (s *Store) Save(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode blob %q: %w", key, err)
	}
	if err := s.Redis.Set(ctx, s.fullKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("save blob %q: %w", key, err)
	}
	return nil
}

// Remove deletes the blob under key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.Redis.Del(ctx, s.fullKey(key)).Err()
}

// Update applies fn to the blob under key inside an optimistic WATCH/MULTI
// transaction and retries when a concurrent writer touches the key first.
// fn receives the raw blob (nil when absent) and returns the replacement
// value; returning write=false leaves the blob as it is. The whole
// read-modify-write is atomic with respect to other Update callers, so two
// concurrent queue mutations cannot silently drop each other's change.
func (s *Store) Update(ctx context.Context, key string, ttl time.Duration, fn func(raw []byte) (next any, write bool, err error)) error {
	full := s.fullKey(key)

	txn := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, full).Bytes()
		if err == redis.Nil {
			raw = nil
		} else if err != nil {
			return err
		}

		next, write, err := fn(raw)
		if err != nil {
			return err
		}
		if !write {
			return nil
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, full, encoded, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.Redis.Watch(ctx, txn, full)
		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			return fmt.Errorf("update blob %q: %w", key, err)
		}
		return nil
	}
	return fmt.Errorf("update blob %q: %w", key, ErrTooMuchContention)
}
