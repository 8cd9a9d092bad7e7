package dialogue

import "sync"

// threadLocks serializes message handling per thread. The engine holds the
// lock across the full load→decide→persist cycle, so two rapid messages in
// the same thread cannot both observe an idle session. Entries are reference
// counted and removed once the last holder releases.
type threadLocks struct {
	mu    sync.Mutex
	locks map[string]*threadLock
}

type threadLock struct {
	mu   sync.Mutex
	refs int
}

func newThreadLocks() *threadLocks {
	return &threadLocks{locks: make(map[string]*threadLock)}
}

// Acquire blocks until the thread's lock is held and returns the release
// function.
func (t *threadLocks) Acquire(threadID string) func() {
	t.mu.Lock()
	l, ok := t.locks[threadID]
	if !ok {
		l = &threadLock{}
		t.locks[threadID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, threadID)
		}
		t.mu.Unlock()
	}
}
