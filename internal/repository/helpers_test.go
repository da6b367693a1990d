package repository

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/trailquest/backend/config"
	"github.com/trailquest/backend/internal/store"
)

// fakeAdapter wraps a MemoryStore with call counting and fault injection.
type fakeAdapter struct {
	*store.MemoryStore
	label string

	mu     sync.Mutex
	gets   int
	puts   int
	putErr func(key store.Key, attempt int) error
	getErr func(key store.Key) error
}

func newFakeAdapter(label string) *fakeAdapter {
	return &fakeAdapter{MemoryStore: store.NewMemoryStore(label), label: label}
}

func (f *fakeAdapter) Name() string { return f.label }

func (f *fakeAdapter) Get(ctx context.Context, key store.Key) (store.Record, error) {
	f.mu.Lock()
	f.gets++
	hook := f.getErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key); err != nil {
			return store.Record{}, err
		}
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *fakeAdapter) Put(ctx context.Context, key store.Key, payload []byte, expected store.VersionToken) (store.VersionToken, error) {
	f.mu.Lock()
	f.puts++
	attempt := f.puts
	hook := f.putErr
	f.mu.Unlock()
	if hook != nil {
		if err := hook(key, attempt); err != nil {
			return store.NoVersion, err
		}
	}
	return f.MemoryStore.Put(ctx, key, payload, expected)
}

func (f *fakeAdapter) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func testFactory(primary, legacy store.Adapter, flags config.StoreFlags) *Factory {
	return NewFactory(primary, legacy, config.NewFlagSource(flags), zap.NewNop())
}
