package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is proof that a task holds budget. Release it exactly once; extra
// releases are ignored.
type Token struct {
	memoryMB int
	released atomic.Bool
}

// MemoryMB returns the memory charged to the token.
func (t *Token) MemoryMB() int { return t.memoryMB }

// Budget hands out concurrency slots and memory to running tasks. A task is
// admitted only when both a slot and its memory fit; otherwise it waits.
type Budget struct {
	mu         sync.Mutex
	slots      int
	memoryMB   int
	usedSlots  int
	usedMemory int
	peakSlots  int
	wake       chan struct{} // closed and replaced on every release
}

// NewBudget creates a budget with maxParallel slots and memoryLimitMB of
// memory.
func NewBudget(maxParallel, memoryLimitMB int) *Budget {
	if maxParallel <= 0 {
		maxParallel = 1
	}
	return &Budget{
		slots:    maxParallel,
		memoryMB: memoryLimitMB,
		wake:     make(chan struct{}),
	}
}

// charge returns the memory a requirement costs. Unspecified requirements
// cost DefaultMemoryMB, clamped so they always fit an empty budget.
func (b *Budget) charge(req *Resources) int {
	if req == nil || req.MemoryMB <= 0 {
		return min(DefaultMemoryMB, b.memoryMB)
	}
	return req.MemoryMB
}

func (b *Budget) fitsLocked(memory int) bool {
	return b.usedSlots < b.slots && b.usedMemory+memory <= b.memoryMB
}

func (b *Budget) grantLocked(memory int) *Token {
	b.usedSlots++
	b.usedMemory += memory
	if b.usedSlots > b.peakSlots {
		b.peakSlots = b.usedSlots
	}
	return &Token{memoryMB: memory}
}

// TryAcquire admits the requirement if it fits right now.
func (b *Budget) TryAcquire(req *Resources) (*Token, bool) {
	memory := b.charge(req)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.fitsLocked(memory) {
		return nil, false
	}
	return b.grantLocked(memory), true
}

// Acquire blocks until the requirement fits or ctx is done. A requirement
// larger than the whole budget fails with *ResourceError instead of waiting
// forever.
func (b *Budget) Acquire(ctx context.Context, req *Resources) (*Token, error) {
	memory := b.charge(req)
	if memory > b.memoryMB {
		return nil, &ResourceError{RequestedMB: memory, LimitMB: b.memoryMB}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		b.mu.Lock()
		if b.fitsLocked(memory) {
			token := b.grantLocked(memory)
			b.mu.Unlock()
			return token, nil
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Release returns a token's slot and memory and wakes waiters.
func (b *Budget) Release(token *Token) {
	if token == nil || !token.released.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.usedSlots--
	b.usedMemory -= token.memoryMB
	close(b.wake)
	b.wake = make(chan struct{})
}

// InUse reports currently held slots and memory.
func (b *Budget) InUse() (slots, memoryMB int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.usedSlots, b.usedMemory
}

// PeakSlots reports the highest number of slots held at once.
func (b *Budget) PeakSlots() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peakSlots
}
