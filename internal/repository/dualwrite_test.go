package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

func passthrough(payload []byte) mutatePayload {
	return func([]byte, bool) ([]byte, error) { return payload, nil }
}

func TestDualWriteLandsInBothStores(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	w := newDualWriter(primary, legacy, &singleReader{adapter: legacy}, zap.NewNop())

	rec, err := w.write(context.Background(), store.OrgKey("acme"), passthrough([]byte(`{"slug":"acme"}`)))
	require.NoError(t, err)
	require.NotEqual(t, store.NoVersion, rec.Version)

	p, err := primary.MemoryStore.Get(context.Background(), store.OrgKey("acme"))
	require.NoError(t, err)
	require.JSONEq(t, `{"slug":"acme"}`, string(p.Payload))
	// the caller's working copy holds the primary's token
	require.Equal(t, p.Version, rec.Version)

	l, err := legacy.MemoryStore.Get(context.Background(), store.OrgKey("acme"))
	require.NoError(t, err)
	require.JSONEq(t, `{"slug":"acme"}`, string(l.Payload))
}

func TestDualWritePrimaryFailureSkipsLegacy(t *testing.T) {
	primary := newFakeAdapter("primary")
	primary.putErr = func(store.Key, int) error { return fmt.Errorf("disk on fire: %w", store.ErrUnavailable) }
	legacy := newFakeAdapter("legacy")
	w := newDualWriter(primary, legacy, &singleReader{adapter: legacy}, zap.NewNop())

	_, err := w.write(context.Background(), store.OrgKey("acme"), passthrough([]byte(`{}`)))
	require.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 0, legacy.putCount())
}

func TestDualWriteSecondaryFailureIsPartialSuccess(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	legacy.putErr = func(store.Key, int) error { return errors.New("legacy timeout") }
	w := newDualWriter(primary, legacy, &singleReader{adapter: legacy}, zap.NewNop())

	rec, err := w.write(context.Background(), store.OrgKey("acme"), passthrough([]byte(`{"slug":"acme"}`)))
	require.NoError(t, err) // durable in primary, secondary logged only
	require.NotEqual(t, store.NoVersion, rec.Version)
	require.Equal(t, 1, legacy.putCount()) // never retried synchronously

	_, err = legacy.MemoryStore.Get(context.Background(), store.OrgKey("acme"))
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDualWriteConflictRetriesExactlyOnce(t *testing.T) {
	primary := newFakeAdapter("primary")
	primary.putErr = func(_ store.Key, attempt int) error {
		if attempt == 1 {
			return fmt.Errorf("beaten to it: %w", store.ErrConflict)
		}
		return nil
	}
	legacy := newFakeAdapter("legacy")
	w := newDualWriter(primary, nil, &singleReader{adapter: legacy}, zap.NewNop())

	_, err := w.write(context.Background(), store.OrgKey("acme"), passthrough([]byte(`{}`)))
	require.NoError(t, err)
	require.Equal(t, 2, primary.putCount())
}

func TestDualWriteSecondConflictSurfaces(t *testing.T) {
	primary := newFakeAdapter("primary")
	primary.putErr = func(store.Key, int) error { return fmt.Errorf("contended: %w", store.ErrConflict) }
	legacy := newFakeAdapter("legacy")
	w := newDualWriter(primary, legacy, &singleReader{adapter: legacy}, zap.NewNop())

	_, err := w.write(context.Background(), store.OrgKey("acme"), passthrough([]byte(`{}`)))
	require.ErrorIs(t, err, store.ErrConflict)
	require.Equal(t, 2, primary.putCount()) // initial + one retry, no more
	require.Equal(t, 0, legacy.putCount())
}

func TestDualWriteMutatorSeesCurrentPayload(t *testing.T) {
	primary := newFakeAdapter("primary")
	legacy := newFakeAdapter("legacy")
	ctx := context.Background()
	_, err := legacy.MemoryStore.Put(ctx, store.OrgKey("acme"), []byte(`{"n":1}`), store.NoVersion)
	require.NoError(t, err)

	w := newDualWriter(primary, legacy, &singleReader{adapter: legacy}, zap.NewNop())
	_, err = w.write(ctx, store.OrgKey("acme"), func(payload []byte, found bool) ([]byte, error) {
		require.True(t, found)
		require.JSONEq(t, `{"n":1}`, string(payload))
		return []byte(`{"n":2}`), nil
	})
	require.NoError(t, err)

	p, err := primary.MemoryStore.Get(ctx, store.OrgKey("acme"))
	require.NoError(t, err)
	require.JSONEq(t, `{"n":2}`, string(p.Payload))
}
