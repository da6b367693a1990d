package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

// ParityReport summarizes one verification pass. Mismatches are reported,
// not raised: the checker is a reporting tool and only fails when a backend
// itself is unreachable.
type ParityReport struct {
	Checked        int
	Matched        int
	Mismatched     []string
	MissingPrimary []string
	MissingLegacy  []string
}

// Parity samples organization documents from both stores and compares them
// after stripping volatile fields.
type Parity struct {
	legacy  store.Adapter
	primary store.Adapter
	logger  *zap.Logger
	out     io.Writer
}

// NewParity creates a parity checker over the two adapters.
func NewParity(legacy, primary store.Adapter, logger *zap.Logger) *Parity {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parity{legacy: legacy, primary: primary, logger: logger, out: os.Stdout}
}

// Check samples up to sample organization keys (0 = all; seed makes the
// sample reproducible) and diffs the two stores.
func (p *Parity) Check(ctx context.Context, sample int, seed int64) (*ParityReport, error) {
	slugs, err := enumerateOrgSlugs(ctx, p.legacy)
	if err != nil {
		return nil, err
	}
	if sample > 0 && sample < len(slugs) {
		rng := rand.New(rand.NewSource(seed))
		rng.Shuffle(len(slugs), func(i, j int) { slugs[i], slugs[j] = slugs[j], slugs[i] })
		slugs = slugs[:sample]
		sort.Strings(slugs)
	}

	report := &ParityReport{}
	for _, slug := range slugs {
		key := store.OrgKey(slug)
		legacyRec, legacyErr := p.legacy.Get(ctx, key)
		primaryRec, primaryErr := p.primary.Get(ctx, key)

		switch {
		case isUnreachable(legacyErr) || isUnreachable(primaryErr):
			return report, fmt.Errorf("parity check %s: %w", slug, errors.Join(legacyErr, primaryErr))
		case errors.Is(legacyErr, store.ErrNotFound) && errors.Is(primaryErr, store.ErrNotFound):
			continue
		case errors.Is(primaryErr, store.ErrNotFound):
			report.Checked++
			report.MissingPrimary = append(report.MissingPrimary, slug)
			fmt.Fprintf(p.out, "MISSING primary: %s\n", slug)
			continue
		case errors.Is(legacyErr, store.ErrNotFound):
			report.Checked++
			report.MissingLegacy = append(report.MissingLegacy, slug)
			fmt.Fprintf(p.out, "MISSING legacy: %s\n", slug)
			continue
		}

		report.Checked++
		diff, err := diffPayloads(legacyRec.Payload, primaryRec.Payload)
		if err != nil {
			return report, fmt.Errorf("parity check %s: %w", slug, err)
		}
		if diff == "" {
			report.Matched++
			continue
		}
		report.Mismatched = append(report.Mismatched, slug)
		fmt.Fprintf(p.out, "MISMATCH %s:\n%s\n", slug, diff)
	}

	p.logger.Info("parity check complete",
		zap.Int("checked", report.Checked),
		zap.Int("matched", report.Matched),
		zap.Int("mismatched", len(report.Mismatched)),
		zap.Int("missing_primary", len(report.MissingPrimary)),
		zap.Int("missing_legacy", len(report.MissingLegacy)))
	return report, nil
}

// SetOutput redirects report output (tests).
func (p *Parity) SetOutput(w io.Writer) { p.out = w }

func isUnreachable(err error) bool {
	return err != nil && !errors.Is(err, store.ErrNotFound)
}

// diffPayloads compares two JSON documents ignoring volatile timestamp
// fields, returning a structural diff or "".
func diffPayloads(legacy, primary []byte) (string, error) {
	var l, p any
	if err := json.Unmarshal(legacy, &l); err != nil {
		return "", fmt.Errorf("decode legacy payload: %w", err)
	}
	if err := json.Unmarshal(primary, &p); err != nil {
		return "", fmt.Errorf("decode primary payload: %w", err)
	}
	stripVolatile(l)
	stripVolatile(p)
	return cmp.Diff(l, p), nil
}

var volatileFields = map[string]bool{"created_at": true, "updated_at": true}

// stripVolatile removes timestamp fields recursively, in place.
func stripVolatile(v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if volatileFields[k] {
				delete(t, k)
				continue
			}
			stripVolatile(child)
		}
	case []any:
		for _, child := range t {
			stripVolatile(child)
		}
	}
}
