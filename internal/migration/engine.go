package migration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trailquest/backend/internal/store"
)

// Options configures one backfill run.
type Options struct {
	DryRun         bool
	Resume         bool
	CheckpointPath string
	Concurrency    int
}

// Summary is the outcome of a run.
type Summary struct {
	Total     int      // organizations enumerated
	Migrated  int      // written and checkpointed this run
	Skipped   int      // already present in the checkpoint
	Invalid   []string // malformed, reported and passed over
	Failed    []string // backend failures, retryable on a later run
	Cancelled bool
}

// Ok reports whether every enumerated organization is migrated or was
// already checkpointed.
func (s *Summary) Ok() bool {
	return !s.Cancelled && len(s.Invalid) == 0 && len(s.Failed) == 0
}

// Engine copies every legacy organization (and its derived registry and date
// index records) into the primary store. Idempotent: all writes are
// unconditional upserts, and re-running a completed migration is a no-op.
type Engine struct {
	legacy  store.Adapter
	primary store.Adapter
	logger  *zap.Logger

	planMu  sync.Mutex
	planOut io.Writer // dry-run plan destination, shared by workers
}

// NewEngine creates a backfill engine over the two adapters.
func NewEngine(legacy, primary store.Adapter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{legacy: legacy, primary: primary, logger: logger, planOut: os.Stdout}
}

// Run executes the backfill. Cancellation is graceful: no new organizations
// are dispatched, in-flight ones finish their writes and checkpoint, and the
// run reports itself cancelled so a resume picks up cleanly.
func (e *Engine) Run(ctx context.Context, opts Options) (*Summary, error) {
	runID := uuid.NewString()
	ctx = store.WithCorrelationID(ctx, runID)
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	slugs, err := enumerateOrgSlugs(ctx, e.legacy)
	if err != nil {
		return nil, err
	}
	summary := &Summary{Total: len(slugs)}
	e.logger.Info("backfill starting",
		zap.String("run_id", runID),
		zap.Int("orgs", len(slugs)),
		zap.Int("concurrency", opts.Concurrency),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("resume", opts.Resume))

	var cp *Checkpoint
	if !opts.DryRun {
		cp, err = LoadCheckpoint(opts.CheckpointPath, runID)
		if err != nil {
			return nil, err
		}
		if !opts.Resume && cp.Len() > 0 {
			return nil, fmt.Errorf("checkpoint %s already has %d orgs; pass --resume or remove it", opts.CheckpointPath, cp.Len())
		}
	}

	var (
		mu   sync.Mutex // guards summary
		wg   sync.WaitGroup
		jobs = make(chan string)
	)

	// Writes of an in-flight org must outlive cancellation so the
	// checkpoint stays truthful.
	workCtx := context.WithoutCancel(ctx)

	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for slug := range jobs {
				err := e.processOrg(workCtx, slug, opts.DryRun, cp)
				mu.Lock()
				switch {
				case err == nil:
					summary.Migrated++
				case errors.Is(err, store.ErrValidation):
					summary.Invalid = append(summary.Invalid, slug)
					e.logger.Warn("org skipped as malformed", zap.String("org", slug), zap.Error(err))
				default:
					summary.Failed = append(summary.Failed, slug)
					e.logger.Error("org migration failed", zap.String("org", slug), zap.Error(err))
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, slug := range slugs {
		if cp != nil && cp.Contains(slug) {
			mu.Lock()
			summary.Skipped++
			mu.Unlock()
			continue
		}
		if ctx.Err() != nil {
			summary.Cancelled = true
			break dispatch
		}
		select {
		case jobs <- slug:
		case <-ctx.Done():
			summary.Cancelled = true
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	sort.Strings(summary.Invalid)
	sort.Strings(summary.Failed)

	// The registry is derived once, after the org loop, so workers never
	// contend on the singleton. The checkpoint records its completion: a
	// crash between the last org and the registry put is repaired by the
	// next resume, while a resume of a finished run leaves the primary
	// untouched.
	if !opts.DryRun && !summary.Cancelled && (summary.Migrated > 0 || !cp.RegistryDone()) {
		payload, err := deriveRegistry(workCtx, e.legacy, slugs)
		if err != nil {
			return summary, fmt.Errorf("derive registry: %w", err)
		}
		if _, err := e.primary.Put(workCtx, store.RegistryKey, payload, store.NoVersion); err != nil {
			return summary, fmt.Errorf("write registry: %w", err)
		}
		if err := cp.MarkRegistryDone(); err != nil {
			return summary, fmt.Errorf("checkpoint registry: %w", err)
		}
	}

	e.logger.Info("backfill finished",
		zap.String("run_id", runID),
		zap.Int("migrated", summary.Migrated),
		zap.Int("skipped", summary.Skipped),
		zap.Int("invalid", len(summary.Invalid)),
		zap.Int("failed", len(summary.Failed)),
		zap.Bool("cancelled", summary.Cancelled))
	return summary, nil
}

// processOrg migrates one organization: plan, upsert every derived write,
// then checkpoint. A single org is never handled by two workers.
func (e *Engine) processOrg(ctx context.Context, slug string, dryRun bool, cp *Checkpoint) error {
	rec, err := e.legacy.Get(ctx, store.OrgKey(slug))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: org %s listed in registry but absent", store.ErrValidation, slug)
		}
		return err
	}

	plan, err := planOrg(rec)
	if err != nil {
		return err
	}

	if dryRun {
		// Build the block locally and emit it in one guarded write, so
		// concurrent workers never interleave their plans.
		var b strings.Builder
		fmt.Fprintf(&b, "plan %s: %d writes\n", plan.Slug, len(plan.Writes))
		for _, w := range plan.Writes {
			fmt.Fprintf(&b, "  upsert %s (%d bytes)\n", w.Key, len(w.Payload))
		}
		e.planMu.Lock()
		_, err := io.WriteString(e.planOut, b.String())
		e.planMu.Unlock()
		return err
	}

	for _, w := range plan.Writes {
		if _, err := e.primary.Put(ctx, w.Key, w.Payload, store.NoVersion); err != nil {
			return fmt.Errorf("upsert %s: %w", w.Key, err)
		}
	}
	if err := cp.Append(plan.Slug); err != nil {
		return fmt.Errorf("checkpoint %s: %w", plan.Slug, err)
	}
	e.logger.Debug("org migrated", zap.String("org", plan.Slug), zap.Int("writes", len(plan.Writes)))
	return nil
}

// SetPlanOutput redirects dry-run plan output (tests).
func (e *Engine) SetPlanOutput(w io.Writer) { e.planOut = w }
