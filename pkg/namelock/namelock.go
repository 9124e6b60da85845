// Package namelock provides advisory per-name mutual exclusion for compound
// operations that issue multiple external commands against the same VM.
// Simple single-command operations do not take these locks.
package namelock

import "sync"

// Locker hands out one mutex per name. Entries are dropped once the last
// holder releases, so the map does not grow with the set of names ever seen.
// The zero value is ready to use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lock
}

type lock struct {
	mu   sync.Mutex
	refs int
}

// New creates a Locker.
func New() *Locker {
	return &Locker{}
}

// Lock acquires the mutex for name, blocking while another holder has it.
func (l *Locker) Lock(name string) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*lock)
	}
	e, ok := l.locks[name]
	if !ok {
		e = &lock{}
		l.locks[name] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for name. It must pair with a prior Lock of the
// same name.
func (l *Locker) Unlock(name string) {
	l.mu.Lock()
	e := l.locks[name]
	e.refs--
	if e.refs == 0 {
		delete(l.locks, name)
	}
	l.mu.Unlock()

	e.mu.Unlock()
}
