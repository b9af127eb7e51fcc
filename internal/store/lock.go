package store

import (
	"sync"

	"github.com/engineercoding/dedupe/internal/checksum"
)

// keyedMutex hands out one mutex per fingerprint and forgets it once the
// last holder releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[checksum.Fingerprint]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(fp checksum.Fingerprint) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[checksum.Fingerprint]*refMutex)
	}
	m, ok := k.locks[fp]
	if !ok {
		m = &refMutex{}
		k.locks[fp] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, fp)
		}
		k.mu.Unlock()
	}
}
