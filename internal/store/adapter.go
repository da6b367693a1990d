// Package store defines the document store contract shared by the primary
// (PostgreSQL) and legacy (Redis) backends, plus the optimistic-concurrency
// protocol both sides honor.
package store

import (
	"context"
	"time"
)

// Partitions used by the platform.
const (
	PartitionRegistry  = "registry"
	PartitionOrg       = "org"
	PartitionDateIndex = "dateindex"
)

// VersionToken is an opaque concurrency marker. The subsystem never
// interprets its contents, only equality-compares it.
type VersionToken string

const (
	// NoVersion on Put means unconditional create-or-replace. Only the
	// migration engine and the opportunistic backfill use it; application
	// write paths always present a token or VersionAbsent.
	NoVersion VersionToken = ""

	// VersionAbsent on Put means create-only: the write succeeds only if
	// the key does not exist yet.
	VersionAbsent VersionToken = "!absent"
)

// Key is the composite (partition, row) document key.
type Key struct {
	Partition string
	Row       string
}

func (k Key) String() string { return k.Partition + "/" + k.Row }

// RegistryKey is the fixed key of the singleton registry document.
var RegistryKey = Key{Partition: PartitionRegistry, Row: "singleton"}

// OrgKey returns the key of an organization document.
func OrgKey(slug string) Key {
	return Key{Partition: PartitionOrg, Row: slug}
}

// DateIndexKey returns the key of a date index entry.
func DateIndexKey(date, orgSlug, huntID string) Key {
	return Key{Partition: PartitionDateIndex, Row: date + "/" + orgSlug + ":" + huntID}
}

// DateIndexPrefix returns the row prefix covering all entries for a date.
func DateIndexPrefix(date string) string { return date + "/" }

// Record is one stored document with its concurrency metadata.
type Record struct {
	Key       Key
	Payload   []byte
	Version   VersionToken
	UpdatedAt time.Time
}

// Adapter is the uniform CRUD surface over one physical backend. Adapters
// never invent or discard version tokens: every successful Put returns the
// new token and the caller persists it in its working copy.
type Adapter interface {
	// Name identifies the backend in logs and telemetry.
	Name() string

	// Get returns the record at key, or ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)

	// Put writes payload at key. expected semantics: a token from a prior
	// Get makes the write conditional (ErrConflict on mismatch),
	// VersionAbsent makes it create-only, NoVersion makes it unconditional.
	Put(ctx context.Context, key Key, payload []byte, expected VersionToken) (VersionToken, error)

	// Query returns all records in a partition whose row key starts with
	// rowPrefix, ordered by row key.
	Query(ctx context.Context, partition, rowPrefix string) ([]Record, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation identifier to the context.
// Adapters log it on every call; it never affects behavior.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the correlation identifier from ctx, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
