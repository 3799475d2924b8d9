package sync

// Semaphore bounds concurrency with a buffered channel. A nil Semaphore is
// unlimited, so callers can pass one through unconditionally.
type Semaphore struct {
	sem chan struct{} // Channel used to track available permits.
}

// NewSemaphore creates a new Semaphore with the specified limit.
func NewSemaphore(limit uint) *Semaphore {
	return &Semaphore{
		sem: make(chan struct{}, limit),
	}
}

// Acquire acquires a permit from the semaphore, blocking if no permits are available.
func (s *Semaphore) Acquire() {
	if s == nil || s.sem == nil {
		return
	}

	s.sem <- struct{}{}
}

// TryAcquire acquires a permit if one is immediately available.
func (s *Semaphore) TryAcquire() bool {
	if s == nil || s.sem == nil {
		return true
	}

	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release releases a permit, allowing another goroutine to acquire it.
func (s *Semaphore) Release() {
	if s == nil || s.sem == nil {
		return
	}

	<-s.sem
}
