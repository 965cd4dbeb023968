package pipeline

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLock_SerializesSameKey(t *testing.T) {
	locks := newKeyLock()

	const workers = 8
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("instagram:janesmith")
			defer unlock()

			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "at most one holder per key at any time")
}

func TestKeyLock_DifferentKeysDoNotContend(t *testing.T) {
	locks := newKeyLock()

	unlockA := locks.Lock("instagram:janesmith")
	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("tiktok:bobjones")
		unlockB()
		close(done)
	}()

	// The second key must acquire while the first is still held.
	<-done
	unlockA()
}

func TestKeyLock_EntriesReleased(t *testing.T) {
	locks := newKeyLock()

	unlock := locks.Lock("instagram:janesmith")
	unlock()

	locks.mu.Lock()
	defer locks.mu.Unlock()
	require.Empty(t, locks.entries, "released keys must not accumulate")
}

func TestKeyLock_Reacquire(t *testing.T) {
	locks := newKeyLock()

	unlock := locks.Lock("instagram:janesmith")
	unlock()
	unlock = locks.Lock("instagram:janesmith")
	unlock()
}
