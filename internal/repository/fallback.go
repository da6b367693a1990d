package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

// fallbackReader serves reads primary-first, falling back to legacy on a
// miss or outage. A legacy hit the primary missed schedules one opportunistic
// backfill: a fire-and-forget unconditional copy into the primary. Backfill
// failures are logged, never surfaced, never retried.
type fallbackReader struct {
	primary store.Adapter
	legacy  store.Adapter
	logger  *zap.Logger

	backfills sync.WaitGroup
}

func newFallbackReader(primary, legacy store.Adapter, logger *zap.Logger) *fallbackReader {
	return &fallbackReader{primary: primary, legacy: legacy, logger: logger}
}

func (r *fallbackReader) read(ctx context.Context, key store.Key) (store.Record, ServedBy, error) {
	rec, err := r.primary.Get(ctx, key)
	if err == nil {
		return rec, ServedBy(r.primary.Name()), nil
	}
	if !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrUnavailable) {
		return store.Record{}, ServedBy(r.primary.Name()), err
	}
	primaryMissed := errors.Is(err, store.ErrNotFound)

	rec, legacyErr := r.legacy.Get(ctx, key)
	if legacyErr != nil {
		return store.Record{}, ServedBy(r.legacy.Name()), legacyErr
	}
	if primaryMissed {
		r.scheduleBackfill(ctx, rec)
	}
	return rec, ServedBy(r.legacy.Name()), nil
}

func (r *fallbackReader) query(ctx context.Context, partition, rowPrefix string) ([]store.Record, ServedBy, error) {
	recs, err := r.primary.Query(ctx, partition, rowPrefix)
	if err == nil && len(recs) > 0 {
		return recs, ServedBy(r.primary.Name()), nil
	}
	if err != nil && !errors.Is(err, store.ErrUnavailable) {
		return nil, ServedBy(r.primary.Name()), err
	}
	// Empty primary result during cutover may just mean "not migrated
	// yet"; prefer whatever legacy has.
	recs, legacyErr := r.legacy.Query(ctx, partition, rowPrefix)
	if legacyErr != nil {
		return nil, ServedBy(r.legacy.Name()), legacyErr
	}
	return recs, ServedBy(r.legacy.Name()), nil
}

func (r *fallbackReader) scheduleBackfill(ctx context.Context, rec store.Record) {
	corrID := store.CorrelationID(ctx)
	r.backfills.Add(1)
	go func() {
		defer r.backfills.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if _, err := r.primary.Put(bctx, rec.Key, rec.Payload, store.NoVersion); err != nil {
			r.logger.Warn("opportunistic backfill failed",
				zap.String("key", rec.Key.String()),
				zap.String("backend", r.primary.Name()),
				zap.String("correlation_id", corrID),
				zap.Error(err))
			return
		}
		r.logger.Debug("opportunistic backfill",
			zap.String("key", rec.Key.String()),
			zap.String("correlation_id", corrID))
	}()
}

// flush waits for in-flight backfills; used by tests and shutdown paths.
func (r *fallbackReader) flush() { r.backfills.Wait() }
