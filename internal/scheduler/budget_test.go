package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBudget_TryAcquire(t *testing.T) {
	b := NewBudget(2, 1024)

	first, ok := b.TryAcquire(&Resources{MemoryMB: 512})
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	second, ok := b.TryAcquire(&Resources{MemoryMB: 512})
	if !ok {
		t.Fatal("second acquire should succeed")
	}
	if _, ok := b.TryAcquire(nil); ok {
		t.Fatal("third acquire should be denied: no slots left")
	}

	b.Release(first)
	if _, ok := b.TryAcquire(&Resources{MemoryMB: 1024}); ok {
		t.Fatal("acquire should be denied: memory still held by second token")
	}

	b.Release(second)
	if slots, mem := b.InUse(); slots != 0 || mem != 0 {
		t.Errorf("InUse() = %d slots, %d MB; want 0, 0", slots, mem)
	}
}

func TestBudget_DefaultCharge(t *testing.T) {
	b := NewBudget(4, 8192)
	token, ok := b.TryAcquire(nil)
	if !ok {
		t.Fatal("acquire should succeed")
	}
	if token.MemoryMB() != DefaultMemoryMB {
		t.Errorf("default charge = %d, want %d", token.MemoryMB(), DefaultMemoryMB)
	}

	tiny := NewBudget(1, 16)
	token, ok = tiny.TryAcquire(&Resources{CPU: 2})
	if !ok {
		t.Fatal("default charge should be clamped to a small memory limit")
	}
	if token.MemoryMB() != 16 {
		t.Errorf("clamped charge = %d, want 16", token.MemoryMB())
	}
}

func TestBudget_DoubleReleaseIsNoop(t *testing.T) {
	b := NewBudget(1, 1024)
	token, _ := b.TryAcquire(nil)
	b.Release(token)
	b.Release(token)
	b.Release(nil)

	if slots, mem := b.InUse(); slots != 0 || mem != 0 {
		t.Fatalf("InUse() = %d slots, %d MB after double release", slots, mem)
	}
	if _, ok := b.TryAcquire(nil); !ok {
		t.Fatal("slot should be free")
	}
	if _, ok := b.TryAcquire(nil); ok {
		t.Fatal("double release must not create an extra slot")
	}
}

func TestBudget_AcquireWaitsForRelease(t *testing.T) {
	b := NewBudget(1, 1024)
	held, _ := b.TryAcquire(nil)

	acquired := make(chan *Token)
	go func() {
		token, err := b.Acquire(context.Background(), nil)
		if err != nil {
			t.Errorf("Acquire() error = %v", err)
		}
		acquired <- token
	}()

	select {
	case <-acquired:
		t.Fatal("Acquire returned while the only slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	b.Release(held)

	select {
	case token := <-acquired:
		b.Release(token)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after release")
	}
}

func TestBudget_AcquireCancelled(t *testing.T) {
	b := NewBudget(1, 1024)
	held, _ := b.TryAcquire(nil)
	defer b.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := b.Acquire(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want DeadlineExceeded", err)
	}
	if slots, _ := b.InUse(); slots != 1 {
		t.Errorf("cancelled acquire changed usage: %d slots", slots)
	}
}

func TestBudget_AcquireImpossible(t *testing.T) {
	b := NewBudget(4, 512)
	_, err := b.Acquire(context.Background(), &Resources{MemoryMB: 1024})

	var rerr *ResourceError
	if !errors.As(err, &rerr) {
		t.Fatalf("Acquire() error = %v, want *ResourceError", err)
	}
}

func TestBudget_NeverExceedsMaxParallel(t *testing.T) {
	const maxParallel = 3
	b := NewBudget(maxParallel, 8192)

	var running, violations atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := b.Acquire(context.Background(), &Resources{MemoryMB: 256})
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer b.Release(token)

			if running.Add(1) > maxParallel {
				violations.Add(1)
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()

	if violations.Load() != 0 {
		t.Errorf("observed %d moments with more than %d holders", violations.Load(), maxParallel)
	}
	if peak := b.PeakSlots(); peak > maxParallel {
		t.Errorf("PeakSlots() = %d, want <= %d", peak, maxParallel)
	}
}

func TestBudget_MemoryBoundsConcurrency(t *testing.T) {
	// Four slots but memory for only two tasks at a time.
	b := NewBudget(4, 1000)

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := b.Acquire(context.Background(), &Resources{MemoryMB: 400})
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer b.Release(token)

			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
		}()
	}
	wg.Wait()

	if peak.Load() > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak.Load())
	}
}
