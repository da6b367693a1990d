package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/models"
	"github.com/trailquest/backend/internal/store"
)

// orgs implements OrgRepo over the flag-routed read and write paths.
type orgs struct {
	f      *Factory
	logger *zap.Logger
}

func (r *orgs) Get(ctx context.Context, slug string) (*models.Organization, ServedBy, error) {
	rec, servedBy, err := r.f.reader().read(ctx, store.OrgKey(slug))
	if err != nil {
		return nil, servedBy, err
	}
	var org models.Organization
	if err := json.Unmarshal(rec.Payload, &org); err != nil {
		return nil, servedBy, fmt.Errorf("decode org %s: %w", slug, err)
	}
	return &org, servedBy, nil
}

func (r *orgs) Upsert(ctx context.Context, slug string, mutate func(*models.Organization) error) (*models.Organization, error) {
	var result *models.Organization
	now := time.Now().UTC()

	_, err := r.f.writer().write(ctx, store.OrgKey(slug), func(payload []byte, found bool) ([]byte, error) {
		org := &models.Organization{Slug: slug, CreatedAt: now}
		if found {
			org = &models.Organization{}
			if err := json.Unmarshal(payload, org); err != nil {
				return nil, fmt.Errorf("decode org %s: %w", slug, err)
			}
		}
		if err := mutate(org); err != nil {
			return nil, err
		}
		org.Slug = slug // slug is the key and stays stable
		org.UpdatedAt = now
		if err := org.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
		}
		result = org
		return json.Marshal(org)
	})
	if err != nil {
		return nil, err
	}

	r.updateDirectory(ctx, result)
	return result, nil
}

// updateDirectory keeps the registry's org directory in step. Best-effort:
// the org write already succeeded, so a directory failure is logged for
// reconciliation rather than surfaced.
func (r *orgs) updateDirectory(ctx context.Context, org *models.Organization) {
	entry := models.OrgDirectoryEntry{
		Slug:      org.Slug,
		Name:      org.Name,
		HuntCount: len(org.Hunts),
		Archived:  org.Archived,
	}
	_, err := r.f.writer().write(ctx, store.RegistryKey, func(payload []byte, found bool) ([]byte, error) {
		reg := &models.Registry{}
		if found {
			if err := json.Unmarshal(payload, reg); err != nil {
				return nil, fmt.Errorf("decode registry: %w", err)
			}
		}
		reg.UpsertDirectoryEntry(entry)
		reg.UpdatedAt = time.Now().UTC()
		return json.Marshal(reg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("registry directory update failed",
			zap.String("org", org.Slug),
			zap.String("correlation_id", store.CorrelationID(ctx)),
			zap.Error(err))
	}
}
