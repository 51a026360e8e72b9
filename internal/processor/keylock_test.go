package processor

import (
	"sync"
	"testing"
	"time"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	kl := newKeyLock()

	var inCritical, maxInCritical int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock("app_store/tx-1")
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxInCritical != 1 {
		t.Errorf("critical section for one key held by %d goroutines at once", maxInCritical)
	}
}

func TestKeyLock_DifferentKeysDoNotBlock(t *testing.T) {
	kl := newKeyLock()

	unlockA := kl.Lock("app_store/tx-a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := kl.Lock("app_store/tx-b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked behind an unrelated lock")
	}
}

func TestKeyLock_EntriesAreReleased(t *testing.T) {
	kl := newKeyLock()

	for i := 0; i < 100; i++ {
		unlock := kl.Lock("key")
		unlock()
	}

	kl.mu.Lock()
	remaining := len(kl.locks)
	kl.mu.Unlock()

	if remaining != 0 {
		t.Errorf("lock map should be empty after release, has %d entries", remaining)
	}
}
