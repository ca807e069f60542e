package relation

import "sync"

// pairLocks hands out one mutex per unordered user pair. Entries are
// reference counted and dropped when no transition holds or waits on them.
type pairLocks struct {
	mu    sync.Mutex
	locks map[pairKey]*pairLock
}

type pairKey struct{ lo, hi string }

type pairLock struct {
	mu   sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[pairKey]*pairLock)}
}

func keyFor(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// lock blocks until the pair is free and returns the matching unlock.
func (p *pairLocks) lock(a, b string) func() {
	key := keyFor(a, b)

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
