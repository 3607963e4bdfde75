package binding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/cache"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/retry"
	"github.com/stretchr/testify/require"
)

func newFakeClock() *clock.Fake {
	return clock.NewFake(time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC))
}

func await[T any](t *testing.T, b *Binding[T]) View[T] {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	v, err := b.Await(ctx)
	require.NoError(t, err)
	return v
}

type viewLog[T any] struct {
	mu    sync.Mutex
	views []View[T]
}

func (l *viewLog[T]) record(v View[T]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.views = append(l.views, v)
}

func (l *viewLog[T]) statuses() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Status, 0, len(l.views))
	for _, v := range l.views {
		out = append(out, v.Status)
	}
	return out
}

func TestBinding_LoadsOnActivate(t *testing.T) {
	clk := newFakeClock()
	b := New(func(ctx context.Context) (int, error) { return 5, nil }, WithClock(clk))
	log := &viewLog[int]{}
	b.OnChange(log.record)

	require.Equal(t, StatusIdle, b.View().Status)
	b.Activate(context.Background())

	v := await(t, b)
	require.Equal(t, StatusReady, v.Status)
	require.Equal(t, 5, v.Data)
	require.NoError(t, v.Err)
	require.Equal(t, clk.Now(), v.UpdatedAt)
	require.Eventually(t, func() bool { return len(log.statuses()) == 2 }, time.Second, time.Millisecond)
	require.Equal(t, []Status{StatusLoading, StatusReady}, log.statuses())
}

func TestBinding_RetriesWithBackoff(t *testing.T) {
	clk := newFakeClock()
	var calls atomic.Int32
	b := New(func(ctx context.Context) (string, error) {
		if calls.Add(1) < 3 {
			return "", errors.New("502 bad gateway")
		}
		return "ok", nil
	}, WithClock(clk), WithPolicy(retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2}))

	b.Activate(context.Background())

	clk.BlockUntil(1)
	require.Equal(t, StatusLoading, b.View().Status)
	clk.Advance(time.Second)
	clk.BlockUntil(1)
	require.Equal(t, StatusLoading, b.View().Status)
	clk.Advance(2 * time.Second)

	v := await(t, b)
	require.Equal(t, StatusReady, v.Status)
	require.Equal(t, "ok", v.Data)
	require.Equal(t, int32(3), calls.Load())
}

func TestBinding_FailsAfterCeiling(t *testing.T) {
	clk := newFakeClock()
	var calls atomic.Int32
	sentinel := errors.New("503")
	b := New(func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, sentinel
	}, WithClock(clk), WithPolicy(retry.Policy{MaxAttempts: 2, BaseDelay: time.Second, Multiplier: 2}))

	b.Activate(context.Background())
	clk.BlockUntil(1)
	clk.Advance(time.Second)
	clk.BlockUntil(1)
	clk.Advance(2 * time.Second)

	v := await(t, b)
	require.Equal(t, StatusFailed, v.Status)
	require.ErrorIs(t, v.Err, sentinel)
	require.ErrorIs(t, v.Err, retry.ErrExhausted)
	require.Equal(t, int32(3), calls.Load())
}

func TestBinding_NonRetryableFailsImmediately(t *testing.T) {
	clk := newFakeClock()
	errAuth := errors.New("unauthorized")
	var calls atomic.Int32
	b := New(func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errAuth
	}, WithClock(clk), WithRetryable(func(err error) bool { return !errors.Is(err, errAuth) }))

	b.Activate(context.Background())
	v := await(t, b)

	require.Equal(t, StatusFailed, v.Status)
	require.ErrorIs(t, v.Err, errAuth)
	require.Equal(t, int32(1), calls.Load())
	require.Zero(t, clk.Pending())
}

func TestBinding_DeactivateDiscardsLateResultButFillsCache(t *testing.T) {
	clk := newFakeClock()
	rc := cache.New(cache.WithClock(clk))
	release := make(chan struct{})
	started := make(chan struct{})

	b := New(func(ctx context.Context) (string, error) {
		return cache.Fetch(ctx, rc, "overview?siteId=1", time.Minute, func(ctx context.Context) (string, error) {
			close(started)
			<-release
			return "fresh", nil
		})
	}, WithClock(clk))
	log := &viewLog[string]{}
	b.OnChange(log.record)

	b.Activate(context.Background())
	<-started
	b.Deactivate()
	require.False(t, b.Active())
	require.Equal(t, StatusIdle, b.View().Status)

	close(release)
	require.Eventually(t, func() bool { return rc.Len() == 1 }, time.Second, time.Millisecond)
	require.Never(t, func() bool { return len(log.statuses()) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, StatusIdle, b.View().Status)
}

func TestBinding_RefetchBypassesCache(t *testing.T) {
	clk := newFakeClock()
	rc := cache.New(cache.WithClock(clk))
	var upstream atomic.Int32

	b := New(func(ctx context.Context) (int32, error) {
		return cache.Fetch(ctx, rc, "sites", time.Minute, func(ctx context.Context) (int32, error) {
			return upstream.Add(1), nil
		})
	}, WithClock(clk))

	b.Activate(context.Background())
	require.Equal(t, int32(1), await(t, b).Data)

	b.Activate(context.Background())
	require.Equal(t, int32(1), await(t, b).Data)

	b.Refetch(context.Background())
	require.Equal(t, int32(2), await(t, b).Data)
	require.Equal(t, int32(2), upstream.Load())
}

func TestBinding_RefetchResetsRetryBudget(t *testing.T) {
	clk := newFakeClock()
	var calls atomic.Int32
	b := New(func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("down")
	}, WithClock(clk), WithPolicy(retry.Policy{MaxAttempts: 1, BaseDelay: time.Second}))

	b.Activate(context.Background())
	clk.BlockUntil(1)
	clk.Advance(time.Second)
	require.Equal(t, StatusFailed, await(t, b).Status)

	b.Refetch(context.Background())
	clk.BlockUntil(1)
	require.Equal(t, StatusLoading, b.View().Status)
	clk.Advance(time.Second)
	require.Equal(t, StatusFailed, await(t, b).Status)
	require.Equal(t, int32(4), calls.Load())
}

func TestBinding_SetDeps(t *testing.T) {
	clk := newFakeClock()
	loaderFor := func(site string) Loader[string] {
		return func(ctx context.Context) (string, error) { return "overview-" + site, nil }
	}
	b := New(loaderFor("1"), WithClock(clk))
	require.True(t, b.SetDeps(context.Background(), loaderFor("1"), "1"))
	b.Activate(context.Background())
	require.Equal(t, "overview-1", await(t, b).Data)

	require.False(t, b.SetDeps(context.Background(), loaderFor("1"), "1"))
	require.True(t, b.SetDeps(context.Background(), loaderFor("2"), "2"))
	require.Equal(t, "overview-2", await(t, b).Data)
}

func TestBinding_RefreshInterval(t *testing.T) {
	clk := newFakeClock()
	var calls atomic.Int32
	b := New(func(ctx context.Context) (int32, error) {
		return calls.Add(1), nil
	}, WithClock(clk), WithRefreshInterval(30*time.Second))

	b.Activate(context.Background())
	require.Equal(t, int32(1), await(t, b).Data)
	require.Equal(t, 1, clk.Pending())

	clk.Advance(30 * time.Second)
	require.Equal(t, int32(2), await(t, b).Data)

	b.Deactivate()
	require.Zero(t, clk.Pending())
	clk.Advance(time.Minute)
	require.Equal(t, int32(2), calls.Load())
}

func TestBinding_ReloadKeepsPreviousData(t *testing.T) {
	clk := newFakeClock()
	gate := make(chan struct{})
	var calls atomic.Int32
	b := New(func(ctx context.Context) (int, error) {
		if calls.Add(1) == 1 {
			return 7, nil
		}
		<-gate
		return 0, errors.New("down")
	}, WithClock(clk), WithRetryable(func(error) bool { return false }))

	b.Activate(context.Background())
	loaded := await(t, b)
	require.Equal(t, 7, loaded.Data)

	b.Refetch(context.Background())
	v := b.View()
	require.Equal(t, StatusLoading, v.Status)
	require.Equal(t, 7, v.Data)
	require.Equal(t, loaded.UpdatedAt, v.UpdatedAt)

	close(gate)
	v = await(t, b)
	require.Equal(t, StatusFailed, v.Status)
	require.Zero(t, v.Data)
	require.True(t, v.UpdatedAt.IsZero())
}

func TestWatchers_SharesAndReleases(t *testing.T) {
	clk := newFakeClock()
	created := 0
	w := NewWatchers(func(key string) *Binding[string] {
		created++
		return New(func(ctx context.Context) (string, error) { return key, nil }, WithClock(clk))
	}, 5*time.Minute, clk)

	first := w.Get(context.Background(), "site-1")
	require.Equal(t, "site-1", await(t, first).Data)
	require.Same(t, first, w.Get(context.Background(), "site-1"))
	w.Get(context.Background(), "site-2")
	require.Equal(t, 2, created)

	clk.Advance(4 * time.Minute)
	w.Get(context.Background(), "site-1")
	clk.Advance(time.Minute)

	require.Equal(t, 1, w.Sweep())
	require.Equal(t, 1, w.Len())
	require.True(t, first.Active())

	w.Close()
	require.Zero(t, w.Len())
	require.False(t, first.Active())
}
