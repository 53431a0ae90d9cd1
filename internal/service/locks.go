package service

import "sync"

// practitionerLocks serializes check-then-insert sequences per practitioner.
type practitionerLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newPractitionerLocks() *practitionerLocks {
	return &practitionerLocks{locks: make(map[int64]*sync.Mutex)}
}

func (p *practitionerLocks) lock(practitionerID int64) func() {
	p.mu.Lock()
	m, ok := p.locks[practitionerID]
	if !ok {
		m = &sync.Mutex{}
		p.locks[practitionerID] = m
	}
	p.mu.Unlock()

	m.Lock()
	return m.Unlock
}
