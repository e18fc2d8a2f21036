package shared

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestKeyedLockMutualExclusion(t *testing.T) {
	locks := NewKeyedLock(time.Second)
	ctx := context.Background()
	key := StockPairKey(uuid.New(), uuid.New())

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
	)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, key)
			require.NoError(t, err)
			mu.Lock()
			holders++
			if holders > maxSeen {
				maxSeen = holders
			}
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			holders--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, 1, maxSeen)
}

func TestKeyedLockTimeout(t *testing.T) {
	locks := NewKeyedLock(50 * time.Millisecond)
	ctx := context.Background()
	key := StockPairKey(uuid.New(), uuid.New())

	release, err := locks.Acquire(ctx, key)
	require.NoError(t, err)
	defer release()

	start := time.Now()
	_, err = locks.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockTimeout)
	require.Less(t, time.Since(start), time.Second)
}

func TestKeyedLockReleaseIsIdempotent(t *testing.T) {
	locks := NewKeyedLock(time.Second)
	ctx := context.Background()
	key := StockPairKey(uuid.New(), uuid.New())

	release, err := locks.Acquire(ctx, key)
	require.NoError(t, err)
	release()
	release()

	again, err := locks.Acquire(ctx, key)
	require.NoError(t, err)
	again()
}

func TestKeyedLockDistinctKeysDoNotBlock(t *testing.T) {
	locks := NewKeyedLock(50 * time.Millisecond)
	ctx := context.Background()

	releaseA, err := locks.Acquire(ctx, StockPairKey(uuid.New(), uuid.New()))
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locks.Acquire(ctx, StockPairKey(uuid.New(), uuid.New()))
	require.NoError(t, err)
	releaseB()
}

func TestAcquireAllOpposingOrdersDoNotDeadlock(t *testing.T) {
	locks := NewKeyedLock(2 * time.Second)
	ctx := context.Background()
	warehouseA, warehouseB, product := uuid.New(), uuid.New(), uuid.New()
	keyA := StockPairKey(warehouseA, product)
	keyB := StockPairKey(warehouseB, product)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	run := func(i int, keys ...string) {
		defer wg.Done()
		for n := 0; n < 50; n++ {
			release, err := locks.AcquireAll(ctx, keys...)
			if err != nil {
				errs[i] = err
				return
			}
			release()
		}
	}
	wg.Add(2)
	go run(0, keyA, keyB)
	go run(1, keyB, keyA)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
}

func TestAcquireAllRollsBackOnFailure(t *testing.T) {
	locks := NewKeyedLock(50 * time.Millisecond)
	ctx := context.Background()
	blocked := StockPairKey(uuid.New(), uuid.New())
	free := StockPairKey(uuid.New(), uuid.New())

	release, err := locks.Acquire(ctx, blocked)
	require.NoError(t, err)
	defer release()

	_, err = locks.AcquireAll(ctx, free, blocked)
	require.ErrorIs(t, err, ErrLockTimeout)

	// The free key must have been released by the rollback.
	again, err := locks.Acquire(ctx, free)
	require.NoError(t, err)
	again()
}

func TestAcquireAllDeduplicatesKeys(t *testing.T) {
	locks := NewKeyedLock(time.Second)
	ctx := context.Background()
	key := StockPairKey(uuid.New(), uuid.New())

	release, err := locks.AcquireAll(ctx, key, key)
	require.NoError(t, err)
	release()
}

func TestAcquireRespectsCallerCancellation(t *testing.T) {
	locks := NewKeyedLock(5 * time.Second)
	key := StockPairKey(uuid.New(), uuid.New())

	release, err := locks.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = locks.Acquire(ctx, key)
	require.ErrorIs(t, err, context.Canceled)
}
