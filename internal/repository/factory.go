package repository

import (
	"context"

	"go.uber.org/zap"

	"github.com/trailquest/backend/config"
	"github.com/trailquest/backend/internal/store"
)

// Factory resolves, per call, which read and write path serves a repository
// operation based on the current flag snapshot. Flag changes take effect on
// the next call; in-flight calls keep the path they started with. This is
// what makes behavioral rollback a flag flip rather than a redeploy.
type Factory struct {
	primary store.Adapter
	legacy  store.Adapter
	flags   *config.FlagSource
	logger  *zap.Logger
}

// NewFactory creates a repository factory over the two store adapters.
func NewFactory(primary, legacy store.Adapter, flags *config.FlagSource, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{primary: primary, legacy: legacy, flags: flags, logger: logger}
}

// Orgs returns the organization port.
func (f *Factory) Orgs() OrgRepo { return &orgs{f: f, logger: f.logger} }

// Events returns the event listing port.
func (f *Factory) Events() EventRepo { return &events{f: f, logger: f.logger} }

// Index returns the date index port.
func (f *Factory) Index() IndexRepo { return &index{f: f, logger: f.logger} }

// reader resolves the read path for one call.
func (f *Factory) reader() reader {
	flags := f.flags.Snapshot()
	if flags.PrimaryEnabled && flags.ReadPrimaryFirst {
		return newFallbackReader(f.primary, f.legacy, f.logger)
	}
	// Before cutover begins, legacy is the only source consulted.
	return &singleReader{adapter: f.legacy}
}

// writer resolves the write path for one call. The coordinator always loads
// through the same read path the flags would give a plain read.
func (f *Factory) writer() writer {
	flags := f.flags.Snapshot()
	switch {
	case flags.PrimaryEnabled && flags.DualWriteEnabled:
		return newDualWriter(f.primary, f.legacy, f.reader(), f.logger)
	case flags.PrimaryEnabled:
		return newDualWriter(f.primary, nil, f.reader(), f.logger)
	default:
		return newDualWriter(f.legacy, nil, f.reader(), f.logger)
	}
}

// singleReader serves reads from exactly one backend.
type singleReader struct {
	adapter store.Adapter
}

func (r *singleReader) read(ctx context.Context, key store.Key) (store.Record, ServedBy, error) {
	rec, err := r.adapter.Get(ctx, key)
	return rec, ServedBy(r.adapter.Name()), err
}

func (r *singleReader) query(ctx context.Context, partition, rowPrefix string) ([]store.Record, ServedBy, error) {
	recs, err := r.adapter.Query(ctx, partition, rowPrefix)
	return recs, ServedBy(r.adapter.Name()), err
}
