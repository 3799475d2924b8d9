package memory

import "time"

// Option is a functional option type for configuring a Store instance.
type Option func(*Store)

// WithClock replaces the wall clock, letting tests control key expiry and
// the store time reported to semaphore handles.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}
