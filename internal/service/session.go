package service

import "github.com/preisanalytics/redis-semaphore/internal/compute"

// Session - per-connection protocol state: authentication and an open
// transaction queue, if any. Owned by a single connection goroutine, no
// internal locking.
type Session struct {
	Authenticated bool

	inMulti bool
	queued  []*compute.Command
}

// beginMulti opens a transaction queue.
func (s *Session) beginMulti() {
	s.inMulti = true
	s.queued = s.queued[:0]
}

// endMulti closes the queue and returns what was collected.
func (s *Session) endMulti() []*compute.Command {
	queued := s.queued
	s.inMulti = false
	s.queued = nil
	return queued
}
