package migration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointAppendAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := LoadCheckpoint(path, "run-1")
	require.NoError(t, err)
	require.Equal(t, 0, cp.Len())

	require.NoError(t, cp.Append("acme"))
	require.NoError(t, cp.Append("globex"))
	require.NoError(t, cp.Append("acme")) // already recorded, no-op
	require.Equal(t, 2, cp.Len())

	reloaded, err := LoadCheckpoint(path, "run-2")
	require.NoError(t, err)
	require.True(t, reloaded.Contains("acme"))
	require.True(t, reloaded.Contains("globex"))
	require.False(t, reloaded.Contains("initech"))
}

func TestCheckpointRegistryDoneSurvivesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	cp, err := LoadCheckpoint(path, "run-1")
	require.NoError(t, err)
	require.False(t, cp.RegistryDone())
	require.NoError(t, cp.Append("acme"))
	require.NoError(t, cp.MarkRegistryDone())

	reloaded, err := LoadCheckpoint(path, "run-2")
	require.NoError(t, err)
	require.True(t, reloaded.RegistryDone())
	require.True(t, reloaded.Contains("acme"))
}

func TestCheckpointIgnoresUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	future := `{"run_id":"r","started_at":"2026-08-01T00:00:00Z","orgs":["acme"],"schema_rev":9,"extra":{"a":1}}`
	require.NoError(t, os.WriteFile(path, []byte(future), 0o644))

	cp, err := LoadCheckpoint(path, "run-2")
	require.NoError(t, err)
	require.True(t, cp.Contains("acme"))
	require.Equal(t, 1, cp.Len())
}

func TestCheckpointCorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"orgs": [truncated`), 0o644))

	_, err := LoadCheckpoint(path, "run-1")
	require.Error(t, err)
}

func TestCheckpointLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	cp, err := LoadCheckpoint(filepath.Join(dir, "checkpoint.json"), "run-1")
	require.NoError(t, err)
	require.NoError(t, cp.Append("acme"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "checkpoint.json", entries[0].Name())
}
