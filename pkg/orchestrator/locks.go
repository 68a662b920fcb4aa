package orchestrator

import (
	"container/list"
	"sync"
)

// maxUserLocks bounds the keyed-mutex table. Idle entries are evicted LRU;
// an entry is never evicted while a goroutine holds or waits on it.
const maxUserLocks = 1024

// userLocks serializes the persistence phase per user id. Turns within a
// session stay ordered because at most one writer runs per user at a time.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
	order *list.List
	cap   int
}

type userLock struct {
	mu   sync.Mutex
	key  string
	refs int
	elem *list.Element
}

func newUserLocks() *userLocks {
	return &userLocks{
		locks: make(map[string]*userLock),
		order: list.New(),
		cap:   maxUserLocks,
	}
}

// acquire blocks until the caller holds the per-key lock.
func (l *userLocks) acquire(key string) *userLock {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &userLock{key: key}
		entry.elem = l.order.PushFront(entry)
		l.locks[key] = entry
		l.evict()
	} else {
		l.order.MoveToFront(entry.elem)
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return entry
}

// release unlocks and drops the reference.
func (l *userLocks) release(entry *userLock) {
	entry.mu.Unlock()

	l.mu.Lock()
	entry.refs--
	l.mu.Unlock()
}

// evict drops idle entries from the back until the table fits. Caller holds
// l.mu.
func (l *userLocks) evict() {
	for l.order.Len() > l.cap {
		evicted := false
		for e := l.order.Back(); e != nil; e = e.Prev() {
			entry := e.Value.(*userLock)
			if entry.refs == 0 {
				l.order.Remove(e)
				delete(l.locks, entry.key)
				evicted = true
				break
			}
		}
		if !evicted {
			return
		}
	}
}
