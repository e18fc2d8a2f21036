package shared

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// StockPairKey builds the lock key for a (warehouse, product) pair. Keys sort
// by warehouse id then product id, which fixes the global acquisition order
// for multi-pair operations.
func StockPairKey(warehouseID, productID uuid.UUID) string {
	return fmt.Sprintf("stock:%s:%s", warehouseID, productID)
}

// KeyedLock serializes operations per key while keeping unrelated keys fully
// parallel. Acquisition is bounded by a timeout so no caller blocks forever.
type KeyedLock struct {
	mu      sync.Mutex
	timeout time.Duration
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// NewKeyedLock constructs a KeyedLock with the given acquisition timeout.
func NewKeyedLock(timeout time.Duration) *KeyedLock {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KeyedLock{timeout: timeout, entries: make(map[string]*lockEntry)}
}

// Acquire takes the lock for key, returning a release function. It fails
// with ErrLockTimeout once the timeout elapses, or with the context error
// when the caller is cancelled first.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	entry := l.retain(key)

	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := entry.sem.Acquire(acquireCtx, 1); err != nil {
		l.releaseEntry(key, entry)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrLockTimeout
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			entry.sem.Release(1)
			l.releaseEntry(key, entry)
		})
	}
	return release, nil
}

// AcquireAll takes every key in sorted order, which prevents deadlock between
// concurrent multi-pair operations such as opposing transfers. On failure no
// key remains held.
func (l *KeyedLock) AcquireAll(ctx context.Context, keys ...string) (func(), error) {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		sorted = append(sorted, key)
	}
	sort.Strings(sorted)

	releases := make([]func(), 0, len(sorted))
	rollback := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range sorted {
		release, err := l.Acquire(ctx, key)
		if err != nil {
			rollback()
			return nil, err
		}
		releases = append(releases, release)
	}

	var once sync.Once
	return func() { once.Do(rollback) }, nil
}

func (l *KeyedLock) retain(key string) *lockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *KeyedLock) releaseEntry(key string, entry *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, key)
	}
}
