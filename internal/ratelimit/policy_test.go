package ratelimit_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/ratelimit"
)

func TestSequential_RunsInOrderWithDelay(t *testing.T) {
	p := ratelimit.Sequential(20 * time.Millisecond)
	var order []int
	start := time.Now()

	err := p.Each(context.Background(), 3, func(_ context.Context, i int) {
		order = append(order, i)
	})

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, order)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestSequential_NeverOverlaps(t *testing.T) {
	p := ratelimit.Policy{MaxConcurrency: 1}
	var inFlight, peak int32

	err := p.Each(context.Background(), 5, func(_ context.Context, _ int) {
		n := atomic.AddInt32(&inFlight, 1)
		if n > atomic.LoadInt32(&peak) {
			atomic.StoreInt32(&peak, n)
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), peak)
}

func TestConcurrent_BoundedFanOut(t *testing.T) {
	p := ratelimit.Policy{MaxConcurrency: 2}
	var mu sync.Mutex
	seen := map[int]bool{}
	var inFlight, peak int32

	err := p.Each(context.Background(), 6, func(_ context.Context, i int) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		seen[i] = true
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	})

	require.NoError(t, err)
	assert.Len(t, seen, 6)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestEach_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	err := ratelimit.Sequential(0).Each(ctx, 3, func(context.Context, int) { calls++ })

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}
