package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializesSameKey(t *testing.T) {
	k := New()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock("txn_1")
			counter++
			k.Unlock("txn_1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	k := New()
	k.Lock("txn_1")
	done := make(chan struct{})
	go func() {
		k.Lock("txn_2")
		k.Unlock("txn_2")
		close(done)
	}()
	<-done // would deadlock if txn_2 waited on txn_1's lock
	k.Unlock("txn_1")
}

func TestEntriesReclaimed(t *testing.T) {
	k := New()
	k.Lock("txn_1")
	k.Unlock("txn_1")

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

func TestUnlockUnheldPanics(t *testing.T) {
	k := New()
	assert.Panics(t, func() { k.Unlock("txn_ghost") })
}
