package memo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGet_CachesWithinTTL(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 42, nil
	}

	for i := 0; i < 5; i++ {
		v, err := c.Get(context.Background(), "k", 0, fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	}

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch invoked %d times within TTL, want 1", n)
	}
}

func TestGet_RefetchesAfterExpiry(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v, _ := c.Get(context.Background(), "k", 10*time.Millisecond, fetch)
	if v != 1 {
		t.Fatalf("first read: got %d, want 1", v)
	}

	time.Sleep(20 * time.Millisecond)

	v, _ = c.Get(context.Background(), "k", 10*time.Millisecond, fetch)
	if v != 2 {
		t.Errorf("read after expiry: got %d, want 2", v)
	}
}

func TestGet_BypassIgnoresCachedEntry(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	var calls int32
	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v, _ := c.Get(context.Background(), "k", time.Minute, fetch)
	if v != 1 {
		t.Fatalf("first read: got %d, want 1", v)
	}

	// The entry is nowhere near expiry, but Bypass must still fetch.
	v, err := c.Get(context.Background(), "k", Bypass, fetch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 2 {
		t.Fatalf("bypass read: got %d, want 2", v)
	}

	// The fresh value re-arms the cache for ordinary reads.
	v, _ = c.Get(context.Background(), "k", time.Minute, fetch)
	if v != 2 {
		t.Errorf("read after bypass: got %d, want 2", v)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("fetch invoked %d times, want 2", n)
	}
}

func TestGet_SingleFlight(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return 7, nil
	}

	const goroutines = 16
	var wg sync.WaitGroup
	results := make([]int, goroutines)
	errs := make([]error, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.Get(context.Background(), "k", 0, fetch)
		}(i)
	}

	// Let every goroutine reach the miss path before releasing the fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("fetch invoked %d times for concurrent misses, want 1", n)
	}
	for i := 0; i < goroutines; i++ {
		if errs[i] != nil {
			t.Fatalf("goroutine %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != 7 {
			t.Errorf("goroutine %d: got %d, want 7", i, results[i])
		}
	}
}

func TestGet_FetchErrorPropagates(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	sentinel := errors.New("rpc unavailable")
	_, err := c.Get(context.Background(), "k", 0, func(ctx context.Context) (int, error) {
		return 0, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Errorf("got %v, want %v", err, sentinel)
	}

	// An error must not poison the key: the next fetch runs again.
	v, err := c.Get(context.Background(), "k", 0, func(ctx context.Context) (int, error) {
		return 9, nil
	})
	if err != nil || v != 9 {
		t.Errorf("got (%d, %v), want (9, nil)", v, err)
	}
}

func TestGet_ContextCancelled(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()
	c := New[int](svc, "test", Options{DefaultTTL: time.Minute}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Get(ctx, "k", 0, func(ctx context.Context) (int, error) {
		close(started)
		time.Sleep(time.Second)
		return 0, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestSweep_OnExpireCallback(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()

	expired := make(chan string, 1)
	c := New[int](svc, "test", Options{
		DefaultTTL:    5 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
		OnExpire:      func(key string) { expired <- key },
	}, testLogger())

	_, _ = c.Get(context.Background(), "k", 0, func(ctx context.Context) (int, error) {
		return 1, nil
	})

	select {
	case key := <-expired:
		if key != "k" {
			t.Errorf("expired key %q, want %q", key, "k")
		}
	case <-time.After(time.Second):
		t.Fatal("expiry callback never fired")
	}
}

func TestSweep_ProactiveRefreshWarmsEntry(t *testing.T) {
	svc := NewService(testLogger())
	defer svc.Close()

	var calls int32
	c := New[int](svc, "test", Options{
		DefaultTTL:    10 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
		Refresh:       true,
	}, testLogger())

	fetch := func(ctx context.Context) (int, error) {
		return int(atomic.AddInt32(&calls, 1)), nil
	}

	v, _ := c.Get(context.Background(), "k", 0, fetch)
	if v != 1 {
		t.Fatalf("got %d, want 1", v)
	}

	// Wait for at least one expiry + warming cycle. The warmed value is
	// never returned to a caller; the only observable effect is the extra
	// fetch invocation.
	deadline := time.After(time.Second)
	for {
		if atomic.LoadInt32(&calls) >= 2 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("warming fetch never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestService_CloseStopsSweepers(t *testing.T) {
	svc := NewService(testLogger())
	c := New[int](svc, "a", Options{DefaultTTL: time.Minute, SweepInterval: time.Millisecond}, testLogger())
	_ = New[string](svc, "b", Options{DefaultTTL: time.Minute, SweepInterval: time.Millisecond}, testLogger())

	if got := len(svc.Names()); got != 2 {
		t.Fatalf("registered %d caches, want 2", got)
	}

	svc.Close()
	svc.Close() // idempotent

	// The stopped cache still answers reads from memory.
	c.store("k", 5, time.Minute, nil)
	if v, ok := c.Peek("k"); !ok || v != 5 {
		t.Errorf("peek after close: got (%d, %v)", v, ok)
	}
}
