package exam

import "sync"

// keyedMutex hands out one mutex per exam ID, dropping it once nobody holds or waits for it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (km *keyedMutex) Lock(key string) (unlock func()) {
	km.mu.Lock()
	m, ok := km.locks[key]
	if !ok {
		m = new(refMutex)
		km.locks[key] = m
	}
	m.refs++
	km.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()

		km.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}
