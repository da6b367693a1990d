package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is the legacy store adapter. Each document is one hash holding
// payload, version and updated_at fields; conditional writes go through a
// WATCH transaction so a concurrent writer trips the version check.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisStore creates the legacy store adapter.
func NewRedisStore(client *redis.Client, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

// Name identifies the backend in logs.
func (s *RedisStore) Name() string { return "redis" }

// Ping verifies the backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func redisKey(key Key) string { return "doc:" + key.Partition + ":" + key.Row }

// Get returns the record at key, or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key Key) (Record, error) {
	fields, err := s.client.HGetAll(ctx, redisKey(key)).Result()
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Record{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	rec, err := recordFromHash(key, fields)
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	s.logger.Debug("store get",
		zap.String("backend", s.Name()),
		zap.String("key", key.String()),
		zap.String("correlation_id", CorrelationID(ctx)))
	return rec, nil
}

// Put writes payload at key per the expected-token semantics and returns the
// new version token.
func (s *RedisStore) Put(ctx context.Context, key Key, payload []byte, expected VersionToken) (VersionToken, error) {
	rkey := redisKey(key)
	next := VersionToken(uuid.NewString())

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, rkey, "version").Result()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		switch expected {
		case NoVersion:
			// unconditional create-or-replace
		case VersionAbsent:
			if exists {
				return fmt.Errorf("key already exists: %w", ErrConflict)
			}
		default:
			if !exists || VersionToken(current) != expected {
				return fmt.Errorf("stale version %s: %w", expected, ErrConflict)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, rkey,
				"payload", string(payload),
				"version", string(next),
				"updated_at", time.Now().UTC().Format(time.RFC3339Nano))
			return nil
		})
		return err
	}

	if err := s.client.Watch(ctx, txf, rkey); err != nil {
		if errors.Is(err, redis.TxFailedErr) && expected != NoVersion {
			// Someone wrote between our read and EXEC; the presented
			// token is stale either way.
			return NoVersion, fmt.Errorf("put %s: %w", key, ErrConflict)
		}
		return NoVersion, fmt.Errorf("put %s: %w", key, err)
	}

	s.logger.Debug("store put",
		zap.String("backend", s.Name()),
		zap.String("key", key.String()),
		zap.String("correlation_id", CorrelationID(ctx)))
	return next, nil
}

// Query returns all records in partition whose row key starts with rowPrefix.
func (s *RedisStore) Query(ctx context.Context, partition, rowPrefix string) ([]Record, error) {
	pattern := "doc:" + partition + ":" + rowPrefix + "*"
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return nil, fmt.Errorf("query %s/%s*: %w", partition, rowPrefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)

	prefix := "doc:" + partition + ":"
	out := make([]Record, 0, len(keys))
	for _, rkey := range keys {
		fields, err := s.client.HGetAll(ctx, rkey).Result()
		if err != nil {
			return nil, fmt.Errorf("query %s/%s*: %w", partition, rowPrefix, err)
		}
		if len(fields) == 0 {
			continue // expired or deleted between SCAN and fetch
		}
		key := Key{Partition: partition, Row: strings.TrimPrefix(rkey, prefix)}
		rec, err := recordFromHash(key, fields)
		if err != nil {
			return nil, fmt.Errorf("query %s/%s*: %w", partition, rowPrefix, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func recordFromHash(key Key, fields map[string]string) (Record, error) {
	rec := Record{
		Key:     key,
		Payload: []byte(fields["payload"]),
		Version: VersionToken(fields["version"]),
	}
	if raw := fields["updated_at"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return Record{}, fmt.Errorf("bad updated_at %q: %w", raw, err)
		}
		rec.UpdatedAt = ts
	}
	return rec, nil
}
