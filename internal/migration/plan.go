// Package migration holds the offline backfill engine that copies all legacy
// documents into the primary store, with checkpointed resume, dry-run and
// parity verification. Nothing here runs on a request path.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/trailquest/backend/internal/models"
	"github.com/trailquest/backend/internal/store"
)

// PlannedWrite is one derived upsert into the primary store.
type PlannedWrite struct {
	Key     store.Key
	Payload []byte
}

// OrgPlan is the full set of writes derived from one legacy organization.
type OrgPlan struct {
	Slug      string
	Directory models.OrgDirectoryEntry
	Writes    []PlannedWrite
}

// planOrg validates a legacy organization record and derives its primary
// writes: the organization document plus one date index entry per hunt.
// Timestamps carried into derived records come from the legacy record, so
// re-planning the same snapshot yields byte-identical payloads.
func planOrg(rec store.Record) (*OrgPlan, error) {
	var org models.Organization
	if err := json.Unmarshal(rec.Payload, &org); err != nil {
		return nil, fmt.Errorf("%w: org %s: %v", store.ErrValidation, rec.Key.Row, err)
	}
	if org.Slug == "" {
		org.Slug = rec.Key.Row
	}
	if org.Slug != rec.Key.Row {
		return nil, fmt.Errorf("%w: org key %s carries slug %s", store.ErrValidation, rec.Key.Row, org.Slug)
	}
	if err := org.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	orgPayload, err := json.Marshal(&org)
	if err != nil {
		return nil, fmt.Errorf("encode org %s: %w", org.Slug, err)
	}
	plan := &OrgPlan{
		Slug: org.Slug,
		Directory: models.OrgDirectoryEntry{
			Slug:      org.Slug,
			Name:      org.Name,
			HuntCount: len(org.Hunts),
			Archived:  org.Archived,
		},
		Writes: []PlannedWrite{{Key: store.OrgKey(org.Slug), Payload: orgPayload}},
	}

	for _, hunt := range org.Hunts {
		if hunt.Date == "" {
			continue // undated hunts are not indexed
		}
		entry := models.DateIndexEntry{
			Date:      hunt.Date,
			OrgSlug:   org.Slug,
			HuntID:    hunt.ID,
			HuntName:  hunt.Name,
			StopCount: len(hunt.Stops),
			UpdatedAt: rec.UpdatedAt.UTC(),
		}
		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("encode date entry %s/%s: %w", org.Slug, hunt.ID, err)
		}
		plan.Writes = append(plan.Writes, PlannedWrite{
			Key:     store.DateIndexKey(hunt.Date, org.Slug, hunt.ID),
			Payload: payload,
		})
	}
	return plan, nil
}

// enumerateOrgSlugs lists organization keys from the legacy registry, sorted
// for reproducible runs. If the registry document is missing (legacy drift),
// the org partition itself is scanned instead.
func enumerateOrgSlugs(ctx context.Context, legacy store.Adapter) ([]string, error) {
	rec, err := legacy.Get(ctx, store.RegistryKey)
	if err == nil {
		var reg models.Registry
		if jsonErr := json.Unmarshal(rec.Payload, &reg); jsonErr != nil {
			return nil, fmt.Errorf("decode legacy registry: %w", jsonErr)
		}
		slugs := make([]string, 0, len(reg.Organizations))
		for _, entry := range reg.Organizations {
			slugs = append(slugs, entry.Slug)
		}
		sort.Strings(slugs)
		return slugs, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read legacy registry: %w", err)
	}

	recs, err := legacy.Query(ctx, store.PartitionOrg, "")
	if err != nil {
		return nil, fmt.Errorf("scan legacy orgs: %w", err)
	}
	slugs := make([]string, 0, len(recs))
	for _, r := range recs {
		slugs = append(slugs, r.Key.Row)
	}
	sort.Strings(slugs)
	return slugs, nil
}

// deriveRegistry rebuilds the primary registry document from every legacy
// organization that still validates. Written once per run, after the org
// loop, so concurrent workers never contend on the singleton.
func deriveRegistry(ctx context.Context, legacy store.Adapter, slugs []string) ([]byte, error) {
	legacyReg := models.Registry{}
	if rec, err := legacy.Get(ctx, store.RegistryKey); err == nil {
		if err := json.Unmarshal(rec.Payload, &legacyReg); err != nil {
			return nil, fmt.Errorf("decode legacy registry: %w", err)
		}
		legacyReg.UpdatedAt = rec.UpdatedAt.UTC()
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	reg := models.Registry{
		FeatureFlags: legacyReg.FeatureFlags,
		UpdatedAt:    legacyReg.UpdatedAt,
	}
	for _, slug := range slugs {
		rec, err := legacy.Get(ctx, store.OrgKey(slug))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("read org %s: %w", slug, err)
		}
		plan, err := planOrg(rec)
		if err != nil {
			continue // invalid orgs were already reported by the org loop
		}
		reg.UpsertDirectoryEntry(plan.Directory)
	}
	return json.Marshal(&reg)
}
