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

// index implements IndexRepo. Every entry must correspond to a hunt that
// exists in its organization document; entries are append-mostly and never
// silently dropped.
type index struct {
	f      *Factory
	logger *zap.Logger
}

func (r *index) UpsertDateEntry(ctx context.Context, date, orgSlug, huntID string) error {
	rec, _, err := r.f.reader().read(ctx, store.OrgKey(orgSlug))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: org %s does not exist", store.ErrValidation, orgSlug)
		}
		return err
	}
	var org models.Organization
	if err := json.Unmarshal(rec.Payload, &org); err != nil {
		return fmt.Errorf("decode org %s: %w", orgSlug, err)
	}
	hunt := org.HuntByID(huntID)
	if hunt == nil {
		return fmt.Errorf("%w: hunt %s not in org %s", store.ErrValidation, huntID, orgSlug)
	}

	entry := models.DateIndexEntry{
		Date:      date,
		OrgSlug:   orgSlug,
		HuntID:    huntID,
		HuntName:  hunt.Name,
		StopCount: len(hunt.Stops),
		UpdatedAt: time.Now().UTC(),
	}

	_, err = r.f.writer().write(ctx, store.DateIndexKey(date, orgSlug, huntID), func([]byte, bool) ([]byte, error) {
		return json.Marshal(entry)
	})
	if err != nil {
		return err
	}
	r.logger.Debug("date entry upserted",
		zap.String("date", date),
		zap.String("org", orgSlug),
		zap.String("hunt", huntID),
		zap.String("correlation_id", store.CorrelationID(ctx)))
	return nil
}
