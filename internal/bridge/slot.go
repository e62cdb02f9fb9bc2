// Package bridge hands the result of a background task to a polling owner.
package bridge

import (
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Slot runs at most one background task at a time and holds its result until
// the owner polls it. The zero value is ready to use.
type Slot[T any] struct {
	// OnPanic turns a panic in the task into a result. When nil the slot
	// completes with the zero value of T.
	OnPanic func(*panics.Recovered) T

	mu      sync.Mutex
	pending bool
	result  chan T
}

// New returns a slot that converts task panics with onPanic.
func New[T any](onPanic func(*panics.Recovered) T) *Slot[T] {
	return &Slot[T]{OnPanic: onPanic}
}

// Start runs fn on a new goroutine. It returns false and does nothing while a
// previous task has not been drained.
func (s *Slot[T]) Start(fn func() T) bool {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return false
	}
	result := make(chan T, 1)
	s.pending = true
	s.result = result
	onPanic := s.OnPanic
	s.mu.Unlock()

	go func() {
		var out T
		var catcher panics.Catcher
		catcher.Try(func() { out = fn() })
		if recovered := catcher.Recovered(); recovered != nil {
			var zero T
			out = zero
			if onPanic != nil {
				out = onPanic(recovered)
			}
		}
		result <- out
	}()
	return true
}

// Poll returns the finished result, if any, and clears the slot. It never
// blocks.
func (s *Slot[T]) Poll() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	if !s.pending {
		return zero, false
	}
	select {
	case out := <-s.result:
		s.pending = false
		s.result = nil
		return out, true
	default:
		return zero, false
	}
}

// Pending reports whether a task is running or its result is waiting.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}
