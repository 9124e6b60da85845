package namelock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockSerializesSameName(t *testing.T) {
	l := New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("web01")
			defer l.Unlock("web01")
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestLockEntriesAreReleased(t *testing.T) {
	l := New()

	l.Lock("web01")
	l.Lock("db01")
	l.Unlock("web01")
	l.Unlock("db01")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Empty(t, l.locks)
}

func TestZeroValueUsable(t *testing.T) {
	var l Locker
	l.Lock("web01")
	l.Unlock("web01")
}
