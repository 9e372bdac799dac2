// internal/session/guard.go
package session

import (
	"sync"
	"sync/atomic"
)

// Guard grants exclusive access to the device link.
// There is no queue: a caller that loses the race is refused at once.
type Guard struct {
	held atomic.Bool
}

// TryAcquire takes the guard if it is free.
// The returned release is idempotent; callers defer it.
func (g *Guard) TryAcquire() (release func(), ok bool) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() { g.held.Store(false) })
	}, true
}

// Held reports whether an operation currently owns the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}
