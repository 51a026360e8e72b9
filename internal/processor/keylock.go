package processor

import "sync"

// keyLock serializes critical sections per key, so concurrent deliveries
// referencing the same subscription identity cannot interleave their
// validate-then-write sequences while unrelated identities proceed in
// parallel.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*keyEntry)}
}

// Lock acquires the mutex for key and returns its unlock function. Entries
// are reference-counted and removed once the last holder releases, so the
// map does not grow with the identity space.
func (k *keyLock) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
