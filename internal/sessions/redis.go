package sessions

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/rendis/botforge/internal/bridge"
	"github.com/rendis/botforge/pkg/schema"
)

const defaultKeyPrefix = "botforge:session:"

// RedisSnapshotStore implements SnapshotStore on Redis. Snapshots are
// stored as JSON values with an optional TTL; a ZSET index keyed by
// expiry supports List.
type RedisSnapshotStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisSnapshotStore.
type RedisOption func(*RedisSnapshotStore)

// WithTTL sets the expiration for stored snapshots. Zero means no expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSnapshotStore) { s.ttl = ttl }
}

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSnapshotStore) { s.prefix = prefix }
}

// NewRedisSnapshotStore connects to Redis at address.
func NewRedisSnapshotStore(address, password string, db int, opts ...RedisOption) *RedisSnapshotStore {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisSnapshotStoreFromClient(client, opts...)
}

// NewRedisSnapshotStoreFromClient wraps an existing client.
func NewRedisSnapshotStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisSnapshotStore {
	s := &RedisSnapshotStore{client: client, prefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSnapshotStore) key(sessionID string) string { return s.prefix + sessionID }
func (s *RedisSnapshotStore) indexKey() string            { return s.prefix + "index" }

func (s *RedisSnapshotStore) Save(ctx context.Context, snap bridge.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal snapshot").WithCause(err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(snap.SessionID), data, s.ttl)

	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01, effectively never
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: snap.SessionID})

	if _, err := pipe.Exec(ctx); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "save snapshot %s", snap.SessionID).WithCause(err)
	}
	return nil
}

func (s *RedisSnapshotStore) Load(ctx context.Context, sessionID string) (*bridge.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err == backend.Nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "snapshot for session %q not found", sessionID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load snapshot %s", sessionID).WithCause(err)
	}

	var snap bridge.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "decode snapshot %s", sessionID).WithCause(err)
	}
	return &snap, nil
}

func (s *RedisSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(sessionID))
	pipe.ZRem(ctx, s.indexKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "delete snapshot %s", sessionID).WithCause(err)
	}
	return nil
}

func (s *RedisSnapshotStore) List(ctx context.Context) ([]bridge.Snapshot, error) {
	// Drop index entries whose snapshot already expired.
	now := float64(time.Now().Unix())
	ids, err := s.client.ZRangeByScore(ctx, s.indexKey(), &backend.ZRangeBy{
		Min: strconv.FormatFloat(now, 'f', 0, 64),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "list snapshots").WithCause(err)
	}

	var out []bridge.Snapshot
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Close releases the underlying client.
func (s *RedisSnapshotStore) Close() error { return s.client.Close() }
