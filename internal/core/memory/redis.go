package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Load when no snapshot is stored for an id.
var ErrNoSnapshot = errors.New("memory: no snapshot")

// RedisSnapshots persists store snapshots in redis so that agent memory
// survives process restarts.
type RedisSnapshots struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisSnapshots creates a snapshot store. A zero ttl keeps snapshots forever.
func NewRedisSnapshots(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSnapshots {
	if prefix == "" {
		prefix = "npcbrain:memory"
	}
	return &RedisSnapshots{client: client, prefix: prefix, ttl: ttl}
}

func (r *RedisSnapshots) key(id string) string { return r.prefix + ":" + id }

// Save writes the current contents of s under id.
func (r *RedisSnapshots) Save(ctx context.Context, id string, s *Store) error {
	b, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(id), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("memory: save %s: %w", id, err)
	}
	return nil
}

// Load restores the snapshot stored under id into s.
func (r *RedisSnapshots) Load(ctx context.Context, id string, s *Store) error {
	b, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w for %s", ErrNoSnapshot, id)
		}
		return fmt.Errorf("memory: load %s: %w", id, err)
	}
	return s.UnmarshalBinary(b)
}

// Delete removes the snapshot stored under id.
func (r *RedisSnapshots) Delete(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("memory: delete %s: %w", id, err)
	}
	return nil
}
