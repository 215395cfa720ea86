package recompute

import (
	"sync"
	"sync/atomic"
)

type projectLock struct {
	mu   sync.Mutex
	held atomic.Bool
}

// ProjectLocks serializes recompute runs per project while letting different
// projects run concurrently. The map only grows; project ids are few.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*projectLock
}

// NewProjectLocks creates an empty lock table.
func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*projectLock)}
}

func (p *ProjectLocks) get(projectID string) *projectLock {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.locks[projectID]
	if !ok {
		l = &projectLock{}
		p.locks[projectID] = l
	}
	return l
}

// Lock blocks until projectID is free.
func (p *ProjectLocks) Lock(projectID string) {
	l := p.get(projectID)
	l.mu.Lock()
	l.held.Store(true)
}

// TryLock acquires projectID only if nobody holds it.
func (p *ProjectLocks) TryLock(projectID string) bool {
	l := p.get(projectID)
	if !l.mu.TryLock() {
		return false
	}
	l.held.Store(true)
	return true
}

// Unlock releases projectID. Unlocking a project that is not held is a no-op.
func (p *ProjectLocks) Unlock(projectID string) {
	p.mu.Lock()
	l, ok := p.locks[projectID]
	p.mu.Unlock()

	if ok && l.held.CompareAndSwap(true, false) {
		l.mu.Unlock()
	}
}
