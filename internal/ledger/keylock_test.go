package ledger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	k := newKeyLock()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.lock("same")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyLock_DistinctKeysDoNotBlock(t *testing.T) {
	k := newKeyLock()

	unlockA := k.lock("a")

	done := make(chan struct{})
	go func() {
		unlockB := k.lock("b")
		unlockB()
		close(done)
	}()

	<-done
	unlockA()
}

func TestKeyLock_EntriesRemovedWhenReleased(t *testing.T) {
	k := newKeyLock()

	unlock := k.lock("ephemeral")
	k.mu.Lock()
	assert.Len(t, k.entries, 1)
	k.mu.Unlock()

	unlock()
	k.mu.Lock()
	assert.Empty(t, k.entries)
	k.mu.Unlock()
}
