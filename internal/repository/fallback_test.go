package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

func TestFallbackServesPrimaryHit(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := primary.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{"n":1}`), store.NoVersion)
	require.NoError(t, err)
	_, err = legacy.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{"n":0}`), store.NoVersion)
	require.NoError(t, err)

	r := newFallbackReader(primary, legacy, zap.NewNop())
	rec, servedBy, err := r.read(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("primary"), servedBy)
	require.JSONEq(t, `{"n":1}`, string(rec.Payload))
	r.flush()
	require.Equal(t, 0, primary.putCount())
}

func TestFallbackLegacyHitTriggersExactlyOneBackfill(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := legacy.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{"slug":"acme"}`), store.NoVersion)
	require.NoError(t, err)

	r := newFallbackReader(primary, legacy, zap.NewNop())
	rec, servedBy, err := r.read(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("legacy"), servedBy)
	require.JSONEq(t, `{"slug":"acme"}`, string(rec.Payload))

	r.flush()
	require.Equal(t, 1, primary.putCount())
	copied, err := primary.MemoryStore.Get(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.JSONEq(t, `{"slug":"acme"}`, string(copied.Payload))

	// second read is a primary hit, no further backfill
	_, servedBy, err = r.read(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("primary"), servedBy)
	r.flush()
	require.Equal(t, 1, primary.putCount())
}

func TestFallbackBackfillFailureNeverSurfaces(t *testing.T) {
	primary := newFakeAdapter("primary")
	primary.putErr = func(store.Key, int) error { return fmt.Errorf("slow: %w", store.ErrUnavailable) }
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := legacy.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{}`), store.NoVersion)
	require.NoError(t, err)

	r := newFallbackReader(primary, legacy, zap.NewNop())
	_, servedBy, err := r.read(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("legacy"), servedBy)
	r.flush()
	require.Equal(t, 1, primary.putCount()) // attempted once, not retried
}

func TestFallbackPrimaryOutageServesLegacy(t *testing.T) {
	primary := newFakeAdapter("primary")
	primary.getErr = func(store.Key) error { return fmt.Errorf("throttled: %w", store.ErrUnavailable) }
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := legacy.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{"n":7}`), store.NoVersion)
	require.NoError(t, err)

	r := newFallbackReader(primary, legacy, zap.NewNop())
	rec, servedBy, err := r.read(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("legacy"), servedBy)
	require.JSONEq(t, `{"n":7}`, string(rec.Payload))
	r.flush()
	// outage is not a miss; no backfill is scheduled at the primary
	require.Equal(t, 0, primary.putCount())
}

func TestFallbackBothMissReturnsNotFound(t *testing.T) {
	r := newFallbackReader(newFakeAdapter("primary"), newFakeAdapter("legacy"), zap.NewNop())
	_, _, err := r.read(context.Background(), store.OrgKey("missing"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestFallbackQueryPrefersNonEmptyResult(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := legacy.MemoryStore.Put(ctx, store.DateIndexKey("2026-09-01", "acme", "h1"), []byte(`{}`), store.NoVersion)
	require.NoError(t, err)

	r := newFallbackReader(primary, legacy, zap.NewNop())
	recs, servedBy, err := r.query(ctx, store.PartitionDateIndex, store.DateIndexPrefix("2026-09-01"))
	require.NoError(t, err)
	require.Equal(t, ServedBy("legacy"), servedBy)
	require.Len(t, recs, 1)
}
