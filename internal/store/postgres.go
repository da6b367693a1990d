package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresStore is the primary store adapter. Documents live in a single
// `documents` table; the version token is a uuid column enforced in the
// UPDATE predicate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates the primary store adapter.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresStore{pool: pool, logger: logger}
}

// Name identifies the backend in logs.
func (s *PostgresStore) Name() string { return "postgres" }

// Ping verifies the backend is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Get returns the record at key, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, key Key) (Record, error) {
	const q = `SELECT payload, version, updated_at FROM documents
		WHERE partition_key = $1 AND row_key = $2`
	rec := Record{Key: key}
	var version string
	err := s.pool.QueryRow(ctx, q, key.Partition, key.Row).
		Scan(&rec.Payload, &version, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s: %w", key, err)
	}
	rec.Version = VersionToken(version)
	s.logger.Debug("store get",
		zap.String("backend", s.Name()),
		zap.String("key", key.String()),
		zap.String("correlation_id", CorrelationID(ctx)))
	return rec, nil
}

// Put writes payload at key per the expected-token semantics and returns the
// new version token.
func (s *PostgresStore) Put(ctx context.Context, key Key, payload []byte, expected VersionToken) (VersionToken, error) {
	next := VersionToken(uuid.NewString())

	switch expected {
	case NoVersion:
		const q = `INSERT INTO documents (partition_key, row_key, payload, version, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (partition_key, row_key)
			DO UPDATE SET payload = EXCLUDED.payload, version = EXCLUDED.version, updated_at = NOW()`
		if _, err := s.pool.Exec(ctx, q, key.Partition, key.Row, payload, string(next)); err != nil {
			return NoVersion, fmt.Errorf("put %s: %w", key, err)
		}
	case VersionAbsent:
		const q = `INSERT INTO documents (partition_key, row_key, payload, version, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (partition_key, row_key) DO NOTHING`
		tag, err := s.pool.Exec(ctx, q, key.Partition, key.Row, payload, string(next))
		if err != nil {
			return NoVersion, fmt.Errorf("put %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return NoVersion, fmt.Errorf("put %s: key already exists: %w", key, ErrConflict)
		}
	default:
		const q = `UPDATE documents
			SET payload = $3, version = $4, updated_at = NOW()
			WHERE partition_key = $1 AND row_key = $2 AND version = $5`
		tag, err := s.pool.Exec(ctx, q, key.Partition, key.Row, payload, string(next), string(expected))
		if err != nil {
			return NoVersion, fmt.Errorf("put %s: %w", key, err)
		}
		if tag.RowsAffected() == 0 {
			return NoVersion, fmt.Errorf("put %s: stale version %s: %w", key, expected, ErrConflict)
		}
	}

	s.logger.Debug("store put",
		zap.String("backend", s.Name()),
		zap.String("key", key.String()),
		zap.String("correlation_id", CorrelationID(ctx)))
	return next, nil
}

// Query returns all records in partition whose row key starts with rowPrefix.
func (s *PostgresStore) Query(ctx context.Context, partition, rowPrefix string) ([]Record, error) {
	const q = `SELECT row_key, payload, version, updated_at FROM documents
		WHERE partition_key = $1 AND row_key LIKE $2 || '%'
		ORDER BY row_key`
	rows, err := s.pool.Query(ctx, q, partition, rowPrefix)
	if err != nil {
		return nil, fmt.Errorf("query %s/%s*: %w", partition, rowPrefix, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec := Record{Key: Key{Partition: partition}}
		var version string
		if err := rows.Scan(&rec.Key.Row, &rec.Payload, &version, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("query %s/%s*: %w", partition, rowPrefix, err)
		}
		rec.Version = VersionToken(version)
		out = append(out, rec)
	}
	return out, rows.Err()
}
