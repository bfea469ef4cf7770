package vault

import "sync"

// Locker serializes work per key. The returned func releases the lock.
type Locker interface {
	Lock(key string) func()
}

// KeyedMutex hands out one mutex per key and forgets it once unused.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// GlobalMutex is a Locker that ignores the key.
type GlobalMutex struct {
	mu sync.Mutex
}

func (g *GlobalMutex) Lock(string) func() {
	g.mu.Lock()
	return g.mu.Unlock
}
