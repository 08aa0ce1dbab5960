package application

import "sync"

// boxLocks serializes mutations per box. Entries are created on first use
// and kept for the life of the process.
type boxLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newBoxLocks() *boxLocks {
	return &boxLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the box is free and returns the unlock function
func (l *boxLocks) lock(boxID string) func() {
	l.mu.Lock()
	m, ok := l.locks[boxID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[boxID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
