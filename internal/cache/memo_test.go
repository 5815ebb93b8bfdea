package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoDoFetchesOnce(t *testing.T) {
	c := NewMemo[string, int]()
	var calls int32

	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.Do(context.Background(), "k", fetch)
		if err != nil {
			t.Fatalf("Do failed: %v", err)
		}
		if v != 42 {
			t.Errorf("Do = %d, want 42", v)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch ran %d times, want 1", n)
	}
}

func TestMemoConcurrentCallersShareOneFetch(t *testing.T) {
	c := NewMemo[string, string]()
	var calls int32
	release := make(chan struct{})

	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "detail", nil
	}

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Do(context.Background(), "variant/7", fetch)
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch ran %d times, want 1", n)
	}
	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("waiter %d error: %v", i, errs[i])
		}
		if results[i] != "detail" {
			t.Errorf("waiter %d = %q, want %q", i, results[i], "detail")
		}
	}
}

func TestMemoFailureNotCached(t *testing.T) {
	c := NewMemo[string, int]()
	var calls int32

	fetch := func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return 0, fmt.Errorf("network down")
		}
		return 7, nil
	}

	if _, err := c.Do(context.Background(), "k", fetch); err == nil {
		t.Fatal("first Do should fail")
	}

	// The failure must not poison the cache: the retry fetches fresh.
	v, err := c.Do(context.Background(), "k", fetch)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if v != 7 {
		t.Errorf("retry = %d, want 7", v)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("fetch ran %d times, want 2", n)
	}
}

func TestMemoWaiterContextCancellation(t *testing.T) {
	c := NewMemo[string, int]()
	release := make(chan struct{})

	go func() {
		_, _ = c.Do(context.Background(), "slow", func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Do(ctx, "slow", func(ctx context.Context) (int, error) {
		t.Error("second fetch should not run while first is in flight")
		return 0, nil
	})
	if err != context.Canceled {
		t.Errorf("cancelled waiter error = %v, want context.Canceled", err)
	}

	close(release)
}

func TestMemoPeekAndForget(t *testing.T) {
	c := NewMemo[string, int]()

	if _, ok := c.Peek("k"); ok {
		t.Error("Peek on empty cache should miss")
	}

	if _, err := c.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 5, nil
	}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if v, ok := c.Peek("k"); !ok || v != 5 {
		t.Errorf("Peek = %d, %v; want 5, true", v, ok)
	}

	c.Forget("k")
	if _, ok := c.Peek("k"); ok {
		t.Error("Peek after Forget should miss")
	}
}
