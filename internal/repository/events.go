package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/models"
	"github.com/trailquest/backend/internal/store"
)

// events implements EventRepo over the date index partition.
type events struct {
	f      *Factory
	logger *zap.Logger
}

func (r *events) ListForDate(ctx context.Context, date string) ([]models.EventSummary, ServedBy, error) {
	recs, servedBy, err := r.f.reader().query(ctx, store.PartitionDateIndex, store.DateIndexPrefix(date))
	if err != nil {
		return nil, servedBy, err
	}

	out := make([]models.EventSummary, 0, len(recs))
	for _, rec := range recs {
		var entry models.DateIndexEntry
		if err := json.Unmarshal(rec.Payload, &entry); err != nil {
			return nil, servedBy, fmt.Errorf("decode date index %s: %w", rec.Key, err)
		}
		out = append(out, entry.Summary())
	}
	r.logger.Debug("list for date",
		zap.String("date", date),
		zap.Int("count", len(out)),
		zap.String("served_by", string(servedBy)),
		zap.String("correlation_id", store.CorrelationID(ctx)))
	return out, servedBy, nil
}
