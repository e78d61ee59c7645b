package ledger

import "sync"

// keyLock serializes diff and disappearance processing per item key.
// Two concurrent scans of the same item would race on current_inventory
// reads-then-writes across separate transactions; the per-key mutex makes
// them take turns. Distinct keys proceed fully in parallel.
//
// Entries are reference counted and removed when the last holder unlocks,
// so the map does not grow with the total number of items ever scanned.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyEntry)}
}

// lock acquires the mutex for key and returns the matching unlock func.
func (k *keyLock) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
