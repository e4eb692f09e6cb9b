package judge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := newMemQueue[int64]()
	for i := int64(1); i <= 3; i++ {
		require.True(t, q.push(ctx, i))
	}
	require.Equal(t, 3, q.len())
	for i := int64(1); i <= 3; i++ {
		v, ok := q.pop(ctx, time.Second)
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestMemQueuePopTimesOut(t *testing.T) {
	q := newMemQueue[string]()
	start := time.Now()
	_, ok := q.pop(context.Background(), 20*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemQueuePopHonorsContext(t *testing.T) {
	q := newMemQueue[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok := q.pop(ctx, time.Minute)
	require.False(t, ok)
}
