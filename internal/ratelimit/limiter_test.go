package ratelimit

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWaitForOrigin_SpacesSameOrigin(t *testing.T) {
	l := New(Config{DefaultInterval: 50 * time.Millisecond})
	ctx := context.Background()

	const callers = 4
	var (
		mu    sync.Mutex
		times []time.Time
		wg    sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, l.WaitForOrigin(ctx, "https://example.com/page"))
			mu.Lock()
			times = append(times, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	for i := 1; i < len(times); i++ {
		gap := times[i].Sub(times[i-1])
		require.GreaterOrEqual(t, gap, 40*time.Millisecond,
			"requests %d and %d issued %v apart", i-1, i, gap)
	}
}

func TestWaitForOrigin_DistinctOriginsOverlap(t *testing.T) {
	l := New(Config{DefaultInterval: time.Second})
	ctx := context.Background()

	require.NoError(t, l.WaitForOrigin(ctx, "https://a.example/1"))

	start := time.Now()
	require.NoError(t, l.WaitForOrigin(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 100*time.Millisecond,
		"b.example must not wait behind a.example")
}

func TestWaitForOrigin_ZeroIntervalDisables(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, l.WaitForOrigin(ctx, "https://example.com/"))
	}
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForOrigin_OverrideTrustedOrigin(t *testing.T) {
	l := New(Config{
		DefaultInterval: time.Second,
		Overrides:       map[string]time.Duration{"fast.example": 0},
	})
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.WaitForOrigin(ctx, "https://fast.example/1"))
	require.NoError(t, l.WaitForOrigin(ctx, "https://fast.example/2"))
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitForOrigin_ContextCanceled(t *testing.T) {
	l := New(Config{DefaultInterval: 5 * time.Second})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.WaitForOrigin(ctx, "https://example.com/"))
	cancel()

	start := time.Now()
	err := l.WaitForOrigin(ctx, "https://example.com/")
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second,
		"canceled wait should return promptly")
}

func TestWaitForOrigin_InvalidURLIsNoop(t *testing.T) {
	l := New(Config{DefaultInterval: time.Second})
	require.NoError(t, l.WaitForOrigin(context.Background(), "://bad"))
}
