package longpoll

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestWaiterSatisfied(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	w := h.Register("cars", time.Second, func(v int) bool { return v > 10 })

	go h.Notify("cars", []int{3, 11, 12})

	got := w.Block(context.Background())
	if len(got) != 2 || got[0] != 11 || got[1] != 12 {
		t.Fatalf("got %v", got)
	}
	if h.Pending("cars") != 0 {
		t.Fatal("waiter not removed after delivery")
	}
}

func TestWaiterTimeout(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	w := h.Register("cars", 20*time.Millisecond, nil)

	start := time.Now()
	got := w.Block(context.Background())
	if got != nil {
		t.Fatalf("expected nil on timeout, got %v", got)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("returned before timeout")
	}
	if h.Pending("cars") != 0 {
		t.Fatal("waiter not removed after timeout")
	}
}

func TestRejectedNotificationKeepsWaiting(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	w := h.Register("cars", time.Second, func(v int) bool { return v == 7 })

	h.Notify("cars", []int{1, 2})
	if h.Pending("cars") != 1 {
		t.Fatal("waiter dropped by non-matching notification")
	}

	go h.Notify("cars", []int{7})
	if got := w.Block(context.Background()); len(got) != 1 || got[0] != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestMultipleWaitersSameKey(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	a := h.Register("orders", time.Second, nil)
	b := h.Register("orders", time.Second, func(v int) bool { return v%2 == 0 })

	var wg sync.WaitGroup
	results := make([][]int, 2)
	wg.Add(2)
	go func() { defer wg.Done(); results[0] = a.Block(context.Background()) }()
	go func() { defer wg.Done(); results[1] = b.Block(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	h.Notify("orders", []int{4})
	wg.Wait()

	if len(results[0]) != 1 || results[0][0] != 4 {
		t.Fatalf("first waiter got %v", results[0])
	}
	if len(results[1]) != 1 || results[1][0] != 4 {
		t.Fatalf("second waiter got %v", results[1])
	}
}

func TestNoReplay(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	h.Notify("orders", []int{9})

	w := h.Register("orders", 20*time.Millisecond, nil)
	if got := w.Block(context.Background()); got != nil {
		t.Fatalf("late registration observed a past notification: %v", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	w := h.Register("cars", 30*time.Millisecond, nil)
	h.Notify("orders", []int{1})

	if got := w.Block(context.Background()); got != nil {
		t.Fatalf("notification crossed keys: %v", got)
	}
}

func TestBlockContextCanceled(t *testing.T) {
	t.Parallel()

	h := NewHub[int]()
	w := h.Register("cars", time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := w.Block(ctx); got != nil {
		t.Fatalf("expected nil on canceled context, got %v", got)
	}
	if h.Pending("cars") != 0 {
		t.Fatal("waiter not removed after cancellation")
	}
}
