package synccache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/tablepos-backend/pkg/metrics"
)

func TestGetCachesAndCountsHits(t *testing.T) {
	c := New[string, int](Options{Name: "orders", Metrics: metrics.NewCacheMetrics(prometheus.NewRegistry())})
	calls := 0
	load := func(context.Context) (int, error) { calls++; return 7, nil }

	v, err := c.Get(context.Background(), "o1", load)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	v, err = c.Get(context.Background(), "o1", load)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Len())
}

func TestGetCollapsesConcurrentLoads(t *testing.T) {
	c := New[string, int](Options{})
	var calls int32
	release := make(chan struct{})
	load := func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 3, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), "k", load)
			if err == nil {
				results[i] = v
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, 3, r)
	}
}

func TestStaleLoadNeverOverwritesInvalidation(t *testing.T) {
	c := New[string, string](Options{})
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, _ := c.Get(context.Background(), "o1", func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate("o1")
	close(release)
	assert.Equal(t, "old", <-done)

	_, cached := c.Peek("o1")
	assert.False(t, cached, "load that began before the invalidation must not be stored")

	v, err := c.Get(context.Background(), "o1", func(context.Context) (string, error) { return "new", nil })
	require.NoError(t, err)
	assert.Equal(t, "new", v)
}

func TestStaleLoadNeverOverwritesSet(t *testing.T) {
	c := New[string, string](Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "t1", func(context.Context) (string, error) {
			close(started)
			<-release
			return "loaded", nil
		})
	}()
	<-started
	c.Set("t1", "written")
	close(release)
	<-done

	v, ok := c.Peek("t1")
	require.True(t, ok)
	assert.Equal(t, "written", v)
}

func TestInvalidateAllFencesEveryKey(t *testing.T) {
	c := New[int, int](Options{})
	c.Set(1, 1)
	c.Set(2, 2)
	c.InvalidateAll()
	assert.Equal(t, 0, c.Len())

	_, ok := c.Peek(1)
	assert.False(t, ok)
}

func TestGetPropagatesLoaderError(t *testing.T) {
	c := New[string, int](Options{})
	_, err := c.Get(context.Background(), "x", func(context.Context) (int, error) { return 0, errors.New("db down") })
	assert.EqualError(t, err, "db down")
	assert.Equal(t, 0, c.Len())
}

func TestTTLExpiry(t *testing.T) {
	c := New[string, int](Options{TTL: time.Minute})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.Set("a", 1)

	_, ok := c.Peek("a")
	assert.True(t, ok)
	now = now.Add(time.Minute)
	_, ok = c.Peek("a")
	assert.False(t, ok)
}

func TestGetManyBatchesMisses(t *testing.T) {
	c := New[string, int](Options{})
	c.Set("a", 1)

	var asked []string
	got, err := c.GetMany(context.Background(), []string{"a", "b", "c", "b"}, func(_ context.Context, keys []string) (map[string]int, error) {
		asked = keys
		return map[string]int{"b": 2}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, asked)
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, got)

	_, ok := c.Peek("c")
	assert.False(t, ok)
	v, ok := c.Peek("b")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestUpdateAndRestore(t *testing.T) {
	c := New[string, string](Options{})

	_, ok := c.Update("missing", func(string) string { return "x" })
	assert.False(t, ok)

	c.Set("li", "waiting")
	restore, ok := c.Update("li", func(string) string { return "in_progress" })
	require.True(t, ok)
	v, _ := c.Peek("li")
	assert.Equal(t, "in_progress", v)

	restore()
	v, _ = c.Peek("li")
	assert.Equal(t, "waiting", v)
}

func TestRestoreIsNoopAfterNewerWrite(t *testing.T) {
	c := New[string, string](Options{})
	c.Set("li", "waiting")
	restore, _ := c.Update("li", func(string) string { return "in_progress" })
	c.Set("li", "completed")

	restore()
	v, _ := c.Peek("li")
	assert.Equal(t, "completed", v)
}
