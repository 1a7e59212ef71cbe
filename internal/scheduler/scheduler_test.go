package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/park285/turnkeeper/internal/lease"
	"github.com/park285/turnkeeper/internal/metrics"
)

func newScheduler(t *testing.T) (*Scheduler, *lease.Manager, *metrics.Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	leases := lease.NewManager(lease.NewRedisStore(rdb))
	m := metrics.New()
	s, err := New(leases, m, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s, leases, m
}

func TestAddValidates(t *testing.T) {
	s, _, _ := newScheduler(t)
	noop := func(context.Context) error { return nil }

	assert.Error(t, s.Add(Task{Name: "", Every: time.Second, Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Every: 0, Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Every: time.Second}))
	require.NoError(t, s.Add(Task{Name: "a", Every: time.Hour, Run: noop}))
	assert.Error(t, s.Add(Task{Name: "a", Every: time.Hour, Run: noop}))
	require.NoError(t, s.Add(Task{Name: "b", Every: time.Hour, Run: noop}))

	names := s.Names()
	sort.Strings(names)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestRunOnce(t *testing.T) {
	s, leases, m := newScheduler(t)
	ctx := context.Background()
	var runs atomic.Int32
	boom := errors.New("boom")
	require.NoError(t, s.Add(Task{Name: "count", Every: time.Hour, Run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}))
	require.NoError(t, s.Add(Task{Name: "fail", Every: time.Hour, Run: func(context.Context) error { return boom }}))

	require.NoError(t, s.RunOnce(ctx, "count"))
	assert.Equal(t, int32(1), runs.Load())
	assert.ErrorIs(t, s.RunOnce(ctx, "fail"), boom)
	assert.ErrorIs(t, s.RunOnce(ctx, "missing"), ErrUnknownTask)

	// another worker holds the task
	l, err := leases.Lock(ctx, "task", "count")
	require.NoError(t, err)
	require.NotNil(t, l)
	require.NoError(t, s.RunOnce(ctx, "count"))
	assert.Equal(t, int32(1), runs.Load())
	l.Release(ctx)

	n, err := testutil.GatherAndCount(m.Registry(), "turnkeeper_task_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStartRunsTasks(t *testing.T) {
	s, _, _ := newScheduler(t)
	ran := make(chan struct{}, 1)
	require.NoError(t, s.Add(Task{Name: "tick", Every: time.Hour, Run: func(context.Context) error {
		select {
		case ran <- struct{}{}:
		default:
		}
		return nil
	}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run after start")
	}
}
