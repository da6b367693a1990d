package store

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/trailquest/backend/config"
)

// retrying decorates an Adapter with bounded exponential backoff for
// transient backend errors. Conflicts, not-found and validation errors pass
// through immediately; they are the caller's to resolve.
type retrying struct {
	inner  Adapter
	cfg    config.RetryConfig
	logger *zap.Logger
}

// WithRetry wraps an adapter in the transient-error retry policy.
func WithRetry(inner Adapter, cfg config.RetryConfig, logger *zap.Logger) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &retrying{inner: inner, cfg: cfg, logger: logger}
}

func (r *retrying) Name() string { return r.inner.Name() }

func (r *retrying) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

func (r *retrying) Get(ctx context.Context, key Key) (Record, error) {
	var rec Record
	err := r.do(ctx, "get", key, func(callCtx context.Context) error {
		var err error
		rec, err = r.inner.Get(callCtx, key)
		return err
	})
	return rec, err
}

func (r *retrying) Put(ctx context.Context, key Key, payload []byte, expected VersionToken) (VersionToken, error) {
	var version VersionToken
	err := r.do(ctx, "put", key, func(callCtx context.Context) error {
		var err error
		version, err = r.inner.Put(callCtx, key, payload, expected)
		return err
	})
	return version, err
}

func (r *retrying) Query(ctx context.Context, partition, rowPrefix string) ([]Record, error) {
	var recs []Record
	err := r.do(ctx, "query", Key{Partition: partition, Row: rowPrefix}, func(callCtx context.Context) error {
		var err error
		recs, err = r.inner.Query(callCtx, partition, rowPrefix)
		return err
	})
	return recs, err
}

// do runs op with per-attempt timeouts under the configured backoff. The
// final error after exhaustion wraps ErrUnavailable.
func (r *retrying) do(ctx context.Context, op string, key Key, call func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	operation := func() error {
		attempt++
		callCtx := ctx
		if r.cfg.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
			defer cancel()
		}
		err := call(callCtx)
		if err == nil {
			return nil
		}
		if permanent(err) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warn("store call retrying",
			zap.String("backend", r.inner.Name()),
			zap.String("op", op),
			zap.String("key", key.String()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.String("correlation_id", CorrelationID(ctx)),
			zap.Error(err))
	}

	wrapped := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.cfg.MaxRetries)), ctx)
	err := backoff.RetryNotify(operation, wrapped, notify)
	if err == nil {
		return nil
	}
	if permanent(err) {
		return err
	}
	return fmt.Errorf("%s %s on %s: %w: %v", op, key, r.inner.Name(), ErrUnavailable, err)
}
