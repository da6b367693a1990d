package migration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// checkpointDoc is the on-disk format. Decoding ignores unknown fields, so
// the file stays readable across engine versions.
type checkpointDoc struct {
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	Orgs         []string  `json:"orgs"`
	RegistryDone bool      `json:"registry_done,omitempty"`
}

// Checkpoint is the durable record of which organizations a run has
// completed. Appends rewrite the whole document via write-temp-then-rename,
// so a crash mid-write never leaves a corrupt file. Workers funnel through a
// single writer lock.
type Checkpoint struct {
	path string

	mu   sync.Mutex
	doc  checkpointDoc
	seen map[string]bool
}

// LoadCheckpoint opens an existing checkpoint file or starts a fresh one.
func LoadCheckpoint(path, runID string) (*Checkpoint, error) {
	cp := &Checkpoint{
		path: path,
		doc:  checkpointDoc{RunID: runID, StartedAt: time.Now().UTC()},
		seen: make(map[string]bool),
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cp, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &cp.doc); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	for _, slug := range cp.doc.Orgs {
		cp.seen[slug] = true
	}
	return cp, nil
}

// Contains reports whether slug was completed by a prior (or this) run.
func (c *Checkpoint) Contains(slug string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen[slug]
}

// Len returns the number of completed organizations.
func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.doc.Orgs)
}

// RegistryDone reports whether the derived registry already landed in the
// primary store.
func (c *Checkpoint) RegistryDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.RegistryDone
}

// MarkRegistryDone records the registry write and persists the checkpoint.
func (c *Checkpoint) MarkRegistryDone() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.doc.RegistryDone {
		return nil
	}
	c.doc.RegistryDone = true
	return c.persistLocked()
}

// Append records slug as completed and persists the checkpoint atomically.
func (c *Checkpoint) Append(slug string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen[slug] {
		return nil
	}
	c.doc.Orgs = append(c.doc.Orgs, slug)
	c.seen[slug] = true
	return c.persistLocked()
}

func (c *Checkpoint) persistLocked() error {
	raw, err := json.MarshalIndent(&c.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
