// Package repository exposes the logical persistence ports (organizations,
// events, date index) and hides which backend serves each call. Routing is
// decided per call from the cutover flag snapshot: reads go through the
// read-through fallback or a single store, writes through the dual-write
// coordinator or a single store.
package repository

import (
	"context"

	"github.com/trailquest/backend/internal/models"
	"github.com/trailquest/backend/internal/store"
)

// ServedBy names the backend that satisfied a read. Exposed for logging and
// telemetry only; callers must not branch on it.
type ServedBy string

// OrgRepo is the organization persistence port.
type OrgRepo interface {
	// Get returns the organization, or store.ErrNotFound.
	Get(ctx context.Context, slug string) (*models.Organization, ServedBy, error)

	// Upsert loads the organization (creating an empty one on first write),
	// applies mutate, and persists the result under the version-token
	// protocol. Returns store.ErrConflict after the single automatic
	// reload-retry is also beaten, or store.ErrUnavailable.
	Upsert(ctx context.Context, slug string, mutate func(*models.Organization) error) (*models.Organization, error)
}

// EventRepo serves the "what is happening today" read path.
type EventRepo interface {
	// ListForDate returns summaries for all hunts indexed on date
	// (YYYY-MM-DD), ordered by (org, hunt).
	ListForDate(ctx context.Context, date string) ([]models.EventSummary, ServedBy, error)
}

// IndexRepo maintains date index entries.
type IndexRepo interface {
	// UpsertDateEntry writes the index entry for (date, orgSlug, huntID).
	// The hunt must exist in its organization document; otherwise
	// store.ErrValidation.
	UpsertDateEntry(ctx context.Context, date, orgSlug, huntID string) error
}

// mutatePayload transforms the current serialized payload into the next one.
// found is false when the key does not exist yet. Writers may call it more
// than once (reload-retry), so it must be safe to re-apply.
type mutatePayload func(payload []byte, found bool) ([]byte, error)

// reader is one resolved read path.
type reader interface {
	read(ctx context.Context, key store.Key) (store.Record, ServedBy, error)
	query(ctx context.Context, partition, rowPrefix string) ([]store.Record, ServedBy, error)
}

// writer is one resolved write path.
type writer interface {
	write(ctx context.Context, key store.Key, mutate mutatePayload) (store.Record, error)
}
