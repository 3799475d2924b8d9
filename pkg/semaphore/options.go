package semaphore

import "time"

// Option is a functional option type for configuring a Semaphore instance.
type Option func(*Semaphore)

// WithResources sets the pool capacity N (default 1).
func WithResources(n int) Option {
	return func(s *Semaphore) {
		s.resources = n
	}
}

// WithExpiration sets a time-to-live reapplied to every keyspace key after
// each mutation, so an abandoned semaphore eventually disappears from the
// store. Disabled by default.
func WithExpiration(ttl time.Duration) Option {
	return func(s *Semaphore) {
		s.expiration = ttl
	}
}

// WithStaleClientTimeout sets the age after which a grabbed token is
// considered abandoned by a crashed holder and eligible for reclamation.
// Disabled by default; acquiring runs a reclamation pass when set.
func WithStaleClientTimeout(timeout time.Duration) Option {
	return func(s *Semaphore) {
		s.staleTimeout = timeout
	}
}

// WithLocalTime makes the handle timestamp leases with the local wall clock
// instead of querying store time.
func WithLocalTime() Option {
	return func(s *Semaphore) {
		s.localTime.Store(true)
	}
}
