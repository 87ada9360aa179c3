package threadpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsDispatchedJobs(t *testing.T) {
	pool, err := NewThreadPool(4, 16, nil)
	require.NoError(t, err)
	require.NoError(t, pool.Start(context.Background()))
	defer pool.Stop()

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		pool.Dispatch(FuncRunner(func(context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
		}))
	}
	wg.Wait()
	assert.Equal(t, int32(10), atomic.LoadInt32(&ran))
}

func TestPoolValidation(t *testing.T) {
	_, err := NewThreadPool(0, 16, nil)
	assert.ErrorIs(t, err, ErrInvalidWorkerCount)

	_, err = NewThreadPool(4, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidQueueSize)

	pool, err := NewThreadPool(1, 1, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, pool.Stop(), ErrPoolNotStarted)
	require.NoError(t, pool.Start(context.Background()))
	assert.ErrorIs(t, pool.Start(context.Background()), ErrPoolAlreadyStarted)
	require.NoError(t, pool.Stop())
}

// jobs queued at the moment of cancellation still run, with the
// cancelled context, so waiters counting completions always unblock
func TestCancellationRunsQueuedJobs(t *testing.T) {
	pool, err := NewThreadPool(1, 16, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, pool.Start(ctx))

	release := make(chan struct{})
	var wg sync.WaitGroup
	var ran, cancelled int32

	// the first job occupies the single worker so the rest stay queued
	wg.Add(1)
	pool.Dispatch(FuncRunner(func(context.Context) {
		defer wg.Done()
		<-release
	}))
	for i := 0; i < 8; i++ {
		wg.Add(1)
		pool.Dispatch(FuncRunner(func(jobCtx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			if jobCtx.Err() != nil {
				atomic.AddInt32(&cancelled, 1)
			}
		}))
	}

	cancel()
	close(release)
	wg.Wait()

	assert.Equal(t, int32(8), atomic.LoadInt32(&ran))
	assert.Equal(t, int32(8), atomic.LoadInt32(&cancelled))
	require.NoError(t, pool.Stop())
}
