package redisq

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := NewClient(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test:queue")
}

func TestQueuePushPopFIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	require.NoError(t, q.Push(ctx, "a"))
	require.NoError(t, q.Push(ctx, "b"))
	require.NoError(t, q.Push(ctx, "c"))

	for _, want := range []string{"a", "b", "c"} {
		got, ok, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, got)
	}
}

func TestQueuePopEmptyTimesOut(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	_, ok, err := q.Pop(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestQueueSurvivesReconnect(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := NewClient(mr.Addr(), "", 0)
	require.NoError(t, New(rdb, "k").Push(ctx, "persisted"))
	_ = rdb.Close()

	rdb2 := NewClient(mr.Addr(), "", 0)
	defer func() { _ = rdb2.Close() }()
	got, ok, err := New(rdb2, "k").Pop(ctx, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "persisted", got)
}

func TestWaitReady(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := NewClient(mr.Addr(), "", 0)
	defer func() { _ = rdb.Close() }()
	require.NoError(t, WaitReady(context.Background(), rdb))
}
