package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Adapter used when LOCAL_EMULATOR_ENABLED is
// set and as a test double for the coordinator, fallback reader and
// migration engine.
type MemoryStore struct {
	name string

	mu   sync.Mutex
	docs map[Key]Record
}

// NewMemoryStore creates an empty in-memory store named for logging.
func NewMemoryStore(name string) *MemoryStore {
	return &MemoryStore{name: name, docs: make(map[Key]Record)}
}

// Name identifies the backend in logs.
func (s *MemoryStore) Name() string { return s.name }

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Get returns the record at key, or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, key Key) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[key]
	if !ok {
		return Record{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	rec.Payload = append([]byte(nil), rec.Payload...)
	return rec, nil
}

// Put writes payload at key per the expected-token semantics.
func (s *MemoryStore) Put(_ context.Context, key Key, payload []byte, expected VersionToken) (VersionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.docs[key]
	switch expected {
	case NoVersion:
		// unconditional create-or-replace
	case VersionAbsent:
		if exists {
			return NoVersion, fmt.Errorf("put %s: key already exists: %w", key, ErrConflict)
		}
	default:
		if !exists || current.Version != expected {
			return NoVersion, fmt.Errorf("put %s: stale version %s: %w", key, expected, ErrConflict)
		}
	}

	next := VersionToken(uuid.NewString())
	s.docs[key] = Record{
		Key:       key,
		Payload:   append([]byte(nil), payload...),
		Version:   next,
		UpdatedAt: time.Now().UTC(),
	}
	return next, nil
}

// Query returns all records in partition whose row key starts with rowPrefix.
func (s *MemoryStore) Query(_ context.Context, partition, rowPrefix string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Record
	for key, rec := range s.docs {
		if key.Partition != partition || !strings.HasPrefix(key.Row, rowPrefix) {
			continue
		}
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Row < out[j].Key.Row })
	return out, nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}
