package migration

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/models"
	"github.com/trailquest/backend/internal/store"
)

func putOrg(t *testing.T, s *store.MemoryStore, org models.Organization) {
	t.Helper()
	payload, err := json.Marshal(&org)
	require.NoError(t, err)
	_, err = s.Put(context.Background(), store.OrgKey(org.Slug), payload, store.NoVersion)
	require.NoError(t, err)
}

func TestParityIgnoresVolatileTimestamps(t *testing.T) {
	legacy := seedLegacy(t, twoOrgs()...)
	primary := store.NewMemoryStore("primary")

	for _, org := range twoOrgs() {
		org.CreatedAt = time.Now().UTC() // differs from legacy copy
		org.UpdatedAt = time.Now().UTC()
		putOrg(t, primary, org)
	}

	p := NewParity(legacy, primary, zap.NewNop())
	var out bytes.Buffer
	p.SetOutput(&out)

	report, err := p.Check(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Equal(t, 2, report.Checked)
	require.Equal(t, 2, report.Matched)
	require.Empty(t, report.Mismatched)
	require.Empty(t, out.String())
}

func TestParityReportsMismatchWithoutFailing(t *testing.T) {
	legacy := seedLegacy(t, twoOrgs()...)
	primary := store.NewMemoryStore("primary")

	orgs := twoOrgs()
	orgs[0].Name = "Acme Renamed"
	for _, org := range orgs {
		putOrg(t, primary, org)
	}

	p := NewParity(legacy, primary, zap.NewNop())
	var out bytes.Buffer
	p.SetOutput(&out)

	report, err := p.Check(context.Background(), 0, 1)
	require.NoError(t, err) // mismatches are reported, never fatal
	require.Equal(t, []string{"acme"}, report.Mismatched)
	require.Equal(t, 1, report.Matched)
	require.Contains(t, out.String(), "MISMATCH acme")
	require.Contains(t, out.String(), "Acme Renamed")
}

func TestParityReportsMissingPrimaryRecords(t *testing.T) {
	legacy := seedLegacy(t, twoOrgs()...)
	primary := store.NewMemoryStore("primary")
	putOrg(t, primary, twoOrgs()[1]) // only globex migrated

	p := NewParity(legacy, primary, zap.NewNop())
	var out bytes.Buffer
	p.SetOutput(&out)

	report, err := p.Check(context.Background(), 0, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"acme"}, report.MissingPrimary)
	require.Equal(t, 1, report.Matched)
	require.Contains(t, out.String(), "MISSING primary: acme")
}

func TestParitySampleIsReproducible(t *testing.T) {
	var orgs []models.Organization
	for _, slug := range []string{"acme", "globex", "initech", "umbrella", "wonka"} {
		orgs = append(orgs, models.Organization{Slug: slug, Name: slug})
	}
	legacy := seedLegacy(t, orgs...)
	primary := store.NewMemoryStore("primary")
	for _, org := range orgs {
		putOrg(t, primary, org)
	}

	p := NewParity(legacy, primary, zap.NewNop())
	p.SetOutput(&bytes.Buffer{})

	first, err := p.Check(context.Background(), 3, 42)
	require.NoError(t, err)
	second, err := p.Check(context.Background(), 3, 42)
	require.NoError(t, err)
	require.Equal(t, 3, first.Checked)
	require.Equal(t, first.Matched, second.Matched)
	require.Equal(t, first.Mismatched, second.Mismatched)
}
