package sync

import (
	"sync"
	"testing"
	"time"
)

func TestSpinlock(t *testing.T) {
	var (
		sl         Spinlock
		wg         sync.WaitGroup
		numWorkers = 10
		counter    int
	)

	sl.Acquire()

	if sl.TryToAcquire() != false {
		t.Error("expected TryToAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			counter++
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(100 * time.Millisecond)
	if counter != 0 {
		t.Fatalf("expected no worker to enter the critical section while the lock is held; got %d", counter)
	}
	sl.Release()
	wg.Wait()

	if counter != numWorkers {
		t.Fatalf("expected counter to be %d; got %d", numWorkers, counter)
	}
}

func TestSpinlockYields(t *testing.T) {
	var yields int
	defer func(origYieldFn func()) { yieldFn = origYieldFn }(yieldFn)

	var sl Spinlock
	sl.Acquire()
	yieldFn = func() {
		yields++
		if yields == 3 {
			sl.Release()
		}
	}

	sl.Acquire()
	if yields != 3 {
		t.Fatalf("expected Acquire to yield 3 times; got %d", yields)
	}
}

func TestTryToAcquire(t *testing.T) {
	var sl Spinlock
	if !sl.TryToAcquire() {
		t.Fatal("expected TryToAcquire to succeed on a free lock")
	}
	sl.Release()
	sl.Release()
	if !sl.TryToAcquire() {
		t.Fatal("expected Release on a free lock to have no effect")
	}
}
