package repository

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

// dualWriter drives one logical write through up to two backends,
// sequentially, first-then-secondary. The first write is conditional on the
// loaded version token; the secondary is an unconditional best-effort copy.
// If the first write fails the secondary is never attempted, so the store
// being cut over to can never trail the one being retired.
//
// With a nil secondary this degrades to the single-store write path, keeping
// one implementation of the load-mutate-write-retry cycle.
type dualWriter struct {
	first     store.Adapter
	secondary store.Adapter // nil when dual-write is off
	loads     reader
	logger    *zap.Logger
}

func newDualWriter(first, secondary store.Adapter, loads reader, logger *zap.Logger) *dualWriter {
	return &dualWriter{first: first, secondary: secondary, loads: loads, logger: logger}
}

func (w *dualWriter) write(ctx context.Context, key store.Key, mutate mutatePayload) (store.Record, error) {
	rec, err := w.writeOnce(ctx, key, mutate)
	if err == nil || !errors.Is(err, store.ErrConflict) {
		return rec, err
	}

	// Exactly one reload-mutate-retry on a version conflict. A second
	// conflict is the caller's problem; anything more risks livelock under
	// contention.
	w.logger.Info("write conflict, retrying once",
		zap.String("key", key.String()),
		zap.String("backend", w.first.Name()),
		zap.String("correlation_id", store.CorrelationID(ctx)))
	return w.writeOnce(ctx, key, mutate)
}

func (w *dualWriter) writeOnce(ctx context.Context, key store.Key, mutate mutatePayload) (store.Record, error) {
	current, servedBy, err := w.loads.read(ctx, key)
	found := true
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return store.Record{}, fmt.Errorf("load %s: %w", key, err)
		}
		found = false
	}

	next, err := mutate(current.Payload, found)
	if err != nil {
		return store.Record{}, err
	}

	// Tokens are only valid against the store that minted them. When the
	// load was served by the other backend, resolve the target store's own
	// token so the conditional write still catches concurrent writers.
	expected := store.VersionAbsent
	if found && string(servedBy) == w.first.Name() {
		expected = current.Version
	} else if found {
		own, err := w.first.Get(ctx, key)
		switch {
		case err == nil:
			expected = own.Version
		case errors.Is(err, store.ErrNotFound):
			expected = store.VersionAbsent
		default:
			return store.Record{}, fmt.Errorf("load %s from %s: %w", key, w.first.Name(), err)
		}
	}

	version, err := w.first.Put(ctx, key, next, expected)
	if err != nil {
		return store.Record{}, err
	}
	result := store.Record{Key: key, Payload: next, Version: version}

	if w.secondary != nil {
		if _, err := w.secondary.Put(ctx, key, next, store.NoVersion); err != nil {
			// Partial success: durable in the first store, logged for
			// out-of-band reconciliation, never retried synchronously.
			w.logger.Error("partial write failure",
				zap.String("key", key.String()),
				zap.String("entity", key.Partition),
				zap.String("backend", w.secondary.Name()),
				zap.String("error_class", errorClass(err)),
				zap.String("correlation_id", store.CorrelationID(ctx)),
				zap.Error(err))
		}
	}
	return result, nil
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, store.ErrConflict):
		return "conflict"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
