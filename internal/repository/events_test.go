package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/trailquest/backend/config"
	"github.com/trailquest/backend/internal/store"
)

func seedOrgWithHunts(t *testing.T, f *Factory) {
	t.Helper()
	ctx := context.Background()
	_, err := f.Orgs().Upsert(ctx, "acme", addHunt("h1", "City Dash", "2026-09-01"))
	require.NoError(t, err)
	_, err = f.Orgs().Upsert(ctx, "globex", addHunt("h9", "Harbor Run", "2026-09-01"))
	require.NoError(t, err)

	require.NoError(t, f.Index().UpsertDateEntry(ctx, "2026-09-01", "acme", "h1"))
	require.NoError(t, f.Index().UpsertDateEntry(ctx, "2026-09-01", "globex", "h9"))
}

func TestListForDateReturnsIndexedHunts(t *testing.T) {
	f := testFactory(newFakeAdapter("primary"), newFakeAdapter("legacy"), config.StoreFlags{})
	seedOrgWithHunts(t, f)

	events, servedBy, err := f.Events().ListForDate(context.Background(), "2026-09-01")
	require.NoError(t, err)
	require.Equal(t, ServedBy("legacy"), servedBy)
	require.Len(t, events, 2)
	require.Equal(t, "acme", events[0].OrgSlug)
	require.Equal(t, "City Dash", events[0].HuntName)
	require.Equal(t, "globex", events[1].OrgSlug)
}

func TestListForDateEmptyDay(t *testing.T) {
	f := testFactory(newFakeAdapter("primary"), newFakeAdapter("legacy"), config.StoreFlags{})
	seedOrgWithHunts(t, f)

	events, _, err := f.Events().ListForDate(context.Background(), "2026-12-25")
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestUpsertDateEntryRejectsUnknownHunt(t *testing.T) {
	f := testFactory(newFakeAdapter("primary"), newFakeAdapter("legacy"), config.StoreFlags{})
	seedOrgWithHunts(t, f)
	ctx := context.Background()

	err := f.Index().UpsertDateEntry(ctx, "2026-09-01", "acme", "ghost")
	require.ErrorIs(t, err, store.ErrValidation)

	err = f.Index().UpsertDateEntry(ctx, "2026-09-01", "nonexistent", "h1")
	require.ErrorIs(t, err, store.ErrValidation)
}

func TestUpsertDateEntryIsRepeatable(t *testing.T) {
	f := testFactory(newFakeAdapter("primary"), newFakeAdapter("legacy"), config.StoreFlags{})
	seedOrgWithHunts(t, f)
	ctx := context.Background()

	require.NoError(t, f.Index().UpsertDateEntry(ctx, "2026-09-01", "acme", "h1"))

	events, _, err := f.Events().ListForDate(ctx, "2026-09-01")
	require.NoError(t, err)
	require.Len(t, events, 2) // same key overwritten, not duplicated
}
