package workqueue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_LatestWinsWhileBusy(t *testing.T) {
	t.Parallel()

	// Arrange
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var seen []int
	var dropped atomic.Int32

	q := New(context.Background(), func(_ context.Context, _ string, item int) {
		if item == 1 {
			started <- struct{}{}
			<-release
		}
		mu.Lock()
		seen = append(seen, item)
		mu.Unlock()
	}, Hooks{Dropped: func(string) { dropped.Add(1) }})

	// Act
	require.True(t, q.Submit("sink", 1))
	<-started
	q.Submit("sink", 2)
	q.Submit("sink", 3)
	q.Submit("sink", 4)
	close(release)
	q.Close()

	// Assert
	require.Equal(t, []int{1, 4}, seen)
	require.Equal(t, int32(2), dropped.Load())
}

func TestQueue_SlowKeyDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	fast := make(chan int, 3)
	q := New(context.Background(), func(_ context.Context, key string, item int) {
		if key == "slow" {
			<-block
			return
		}
		fast <- item
	}, Hooks{})

	q.Submit("slow", 1)
	for i := range 3 {
		q.Submit("fast", i)
		select {
		case got := <-fast:
			require.Equal(t, i, got)
		case <-time.After(2 * time.Second):
			t.Fatal("fast key blocked by slow key")
		}
	}
	close(block)
	q.Close()
}

func TestQueue_PanicKeepsWorkerAlive(t *testing.T) {
	t.Parallel()

	var panics atomic.Int32
	done := make(chan int, 1)
	q := New(context.Background(), func(_ context.Context, _ string, item int) {
		if item == 0 {
			panic("boom")
		}
		done <- item
	}, Hooks{Panicked: func(string, any) { panics.Add(1) }})

	q.Submit("k", 0)
	require.Eventually(t, func() bool { return panics.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	q.Submit("k", 7)
	require.Equal(t, 7, <-done)
	q.Close()
}

func TestQueue_SubmitAfterCloseIsRejected(t *testing.T) {
	t.Parallel()

	q := New(context.Background(), func(context.Context, string, int) {}, Hooks{})
	q.Submit("a", 1)
	q.Close()
	q.Close()

	require.False(t, q.Submit("a", 2))
	require.Equal(t, []string{"a"}, q.Keys())
}
