package lifecycle

import (
	"sync"

	"github.com/observeo/remedy-engine/internal/domain"
)

// LockSet serializes mutations per entity ID. Acquisition is fail-fast: a
// second writer gets ErrEntityBusy instead of queueing, so API callers see a
// conflict immediately rather than a stalled request.
type LockSet struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLockSet creates an empty lock set.
func NewLockSet() *LockSet {
	return &LockSet{held: make(map[string]bool)}
}

// TryAcquire claims the lock for id. On success it returns a release
// function; on contention it returns ErrEntityBusy.
func (s *LockSet) TryAcquire(id string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held[id] {
		return nil, domain.ErrEntityBusy
	}
	s.held[id] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.held, id)
			s.mu.Unlock()
		})
	}
	return release, nil
}
