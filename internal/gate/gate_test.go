package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pendingFor(g *Gate, key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[key]; ok {
		return e.pending
	}
	return 0
}

func TestRunSerializesSameKey(t *testing.T) {
	g := New(Options{})
	var inFlight, maxInFlight atomic.Int32
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := g.Run(context.Background(), "c1", func(context.Context) error {
				n := inFlight.Add(1)
				for {
					m := maxInFlight.Load()
					if n <= m || maxInFlight.CompareAndSwap(m, n) {
						break
					}
				}
				v := counter
				time.Sleep(100 * time.Microsecond)
				counter = v + 1
				inFlight.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestRunFIFOOrder(t *testing.T) {
	g := New(Options{})
	block := make(chan struct{})
	first := make(chan struct{})

	go func() {
		_ = g.Run(context.Background(), "c1", func(context.Context) error {
			close(first)
			<-block
			return nil
		})
	}()
	<-first

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = g.Run(context.Background(), "c1", func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		want := i + 2
		require.Eventually(t, func() bool { return pendingFor(g, "c1") == want }, time.Second, time.Millisecond)
	}

	close(block)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRunDifferentKeysConcurrent(t *testing.T) {
	g := New(Options{MinInterval: 50 * time.Millisecond})
	aStarted := make(chan struct{})
	bDone := make(chan struct{})

	errA := make(chan error, 1)
	go func() {
		errA <- g.Run(context.Background(), "a", func(context.Context) error {
			close(aStarted)
			select {
			case <-bDone:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("key b was blocked behind key a")
			}
		})
	}()
	<-aStarted

	require.NoError(t, g.Run(context.Background(), "b", func(context.Context) error {
		close(bDone)
		return nil
	}))
	require.NoError(t, <-errA)
}

func TestRunThrottlesBackToBack(t *testing.T) {
	const interval = 60 * time.Millisecond
	g := New(Options{MinInterval: interval})

	var firstDone, secondStart time.Time
	require.NoError(t, g.Run(context.Background(), "c1", func(context.Context) error {
		firstDone = time.Now()
		return nil
	}))
	require.NoError(t, g.Run(context.Background(), "c1", func(context.Context) error {
		secondStart = time.Now()
		return nil
	}))

	assert.GreaterOrEqual(t, secondStart.Sub(firstDone), interval-time.Millisecond)

	// another key is not throttled by c1's history
	st := time.Now()
	require.NoError(t, g.Run(context.Background(), "c2", func(context.Context) error { return nil }))
	assert.Less(t, time.Since(st), interval)
}

func TestRunReleasesOnErrorAndPanic(t *testing.T) {
	g := New(Options{})
	boom := errors.New("boom")

	err := g.Run(context.Background(), "c1", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	func() {
		defer func() { assert.NotNil(t, recover()) }()
		_ = g.Run(context.Background(), "c1", func(context.Context) error { panic("kaboom") })
	}()

	ran := false
	require.NoError(t, g.Run(context.Background(), "c1", func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, 0, pendingFor(g, "c1"))
}

func TestRunCancelledWaiterKeepsOrder(t *testing.T) {
	g := New(Options{})
	block := make(chan struct{})
	first := make(chan struct{})
	firstDone := make(chan struct{})

	go func() {
		defer close(firstDone)
		_ = g.Run(context.Background(), "c1", func(context.Context) error {
			close(first)
			<-block
			return nil
		})
	}()
	<-first

	ctx, cancel := context.WithCancel(context.Background())
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Run(ctx, "c1", func(context.Context) error {
			t.Error("cancelled task must not run")
			return nil
		})
	}()
	require.Eventually(t, func() bool { return pendingFor(g, "c1") == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-waitErr, context.Canceled)

	thirdRan := make(chan struct{})
	go func() {
		_ = g.Run(context.Background(), "c1", func(context.Context) error {
			select {
			case <-firstDone:
			default:
				t.Error("third task ran before the first released")
			}
			close(thirdRan)
			return nil
		})
	}()

	time.Sleep(10 * time.Millisecond)
	close(block)
	select {
	case <-thirdRan:
	case <-time.After(time.Second):
		t.Fatal("third task never ran")
	}
}

func TestRunTaskTimeout(t *testing.T) {
	g := New(Options{TaskTimeout: 20 * time.Millisecond})
	err := g.Run(context.Background(), "c1", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, pendingFor(g, "c1"))
}

func TestSweepDropsIdleEntries(t *testing.T) {
	g := New(Options{MinInterval: 10 * time.Millisecond, IdleTTL: time.Minute})
	clock := time.Now()
	var mu sync.Mutex
	g.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return clock
	}

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, g.Run(context.Background(), k, func(context.Context) error { return nil }))
	}
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 0, g.Sweep())

	mu.Lock()
	clock = clock.Add(2 * time.Minute)
	mu.Unlock()

	assert.Equal(t, 3, g.Sweep())
	assert.Equal(t, 0, g.Len())
}
