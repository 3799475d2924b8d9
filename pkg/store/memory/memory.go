package memory

import (
	"context"
	"sync"
	"time"

	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

type valueKind uint8

const (
	kindString valueKind = iota
	kindList
	kindHash
)

// entry - one keyspace slot. Exactly one of str/list/hash is meaningful,
// selected by kind.
type entry struct {
	kind     valueKind
	str      string
	list     []string
	hash     map[string]string
	expireAt time.Time // zero means no expiry
}

// Store is an in-process implementation of the store capability contract.
// A single mutex guards the whole keyspace: cross-key atomicity is part of
// the contract (Tx, GetSet), so per-key partitioning is not an option here.
type Store struct {
	mu      sync.Mutex
	data    map[string]*entry
	waiters map[string][]chan struct{}
	clock   func() time.Time
}

// New creates an empty in-memory store.
func New(opts ...Option) *Store {
	s := &Store{
		data:    make(map[string]*entry),
		waiters: make(map[string][]chan struct{}),
		clock:   time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// lookup - returns the live entry for key, lazily dropping it if expired.
// Callers must hold s.mu.
func (s *Store) lookup(key string) (*entry, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}

	if !e.expireAt.IsZero() && s.clock().After(e.expireAt) {
		delete(s.data, key)
		return nil, false
	}

	return e, true
}

// Get retrieves the string value of key.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", store.ErrKeyNotFound
	}
	if e.kind != kindString {
		return "", store.ErrWrongType
	}

	return e.str, nil
}

// Set stores a string value under key.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value)
	return nil
}

func (s *Store) setLocked(key, value string) {
	s.data[key] = &entry{kind: kindString, str: value}
}

// GetSet atomically writes value and returns the previous value, if any.
func (s *Store) GetSet(_ context.Context, key, value string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.lookup(key)
	if existed && prev.kind != kindString {
		return "", false, store.ErrWrongType
	}

	s.setLocked(key, value)
	if !existed {
		return "", false, nil
	}

	return prev.str, true, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.lookup(key)
	return ok, nil
}

// Del removes the given keys.
func (s *Store) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.data, key)
	}

	return nil
}

// Expire sets a time-to-live on key. A no-op for missing keys.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(key, ttl)
	return nil
}

func (s *Store) expireLocked(key string, ttl time.Duration) {
	if e, ok := s.lookup(key); ok {
		e.expireAt = s.clock().Add(ttl)
	}
}

// Persist removes any time-to-live from key.
func (s *Store) Persist(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.persistLocked(key)
	return nil
}

func (s *Store) persistLocked(key string) {
	if e, ok := s.lookup(key); ok {
		e.expireAt = time.Time{}
	}
}

// RPush appends values to the tail of the list at key.
func (s *Store) RPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rpushLocked(key, values...)
}

func (s *Store) rpushLocked(key string, values ...string) error {
	e, ok := s.lookup(key)
	if !ok {
		e = &entry{kind: kindList}
		s.data[key] = e
	}
	if e.kind != kindList {
		return store.ErrWrongType
	}

	e.list = append(e.list, values...)
	s.wakeLocked(key, len(values))
	return nil
}

// LPop removes and returns the head of the list at key.
func (s *Store) LPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lpopLocked(key)
}

func (s *Store) lpopLocked(key string) (string, bool, error) {
	e, ok := s.lookup(key)
	if !ok {
		return "", false, nil
	}
	if e.kind != kindList {
		return "", false, store.ErrWrongType
	}
	if len(e.list) == 0 {
		return "", false, nil
	}

	head := e.list[0]
	e.list = e.list[1:]
	return head, true, nil
}

// BLPop removes and returns the head of the list at key, waiting up to
// timeout for an element. A zero timeout waits until an element arrives or
// ctx is done.
func (s *Store) BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		s.mu.Lock()
		val, ok, err := s.lpopLocked(key)
		if err != nil || ok {
			s.mu.Unlock()
			return val, ok, err
		}

		wake := make(chan struct{}, 1)
		s.waiters[key] = append(s.waiters[key], wake)
		s.mu.Unlock()

		select {
		case <-wake:
		case <-expired:
			s.abandonWaiter(key, wake)
			return "", false, nil
		case <-ctx.Done():
			s.abandonWaiter(key, wake)
			return "", false, ctx.Err()
		}
	}
}

// abandonWaiter - removes a wait registration; if a wakeup raced with the
// abandonment, it is handed to the next waiter so no pushed element strands.
func (s *Store) abandonWaiter(key string, wake chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	waiters := s.waiters[key]
	for i, ch := range waiters {
		if ch == wake {
			s.waiters[key] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}

	select {
	case <-wake:
		s.wakeLocked(key, 1)
	default:
	}
}

// wakeLocked - signals up to n registered waiters for key.
func (s *Store) wakeLocked(key string, n int) {
	waiters := s.waiters[key]
	for n > 0 && len(waiters) > 0 {
		ch := waiters[0]
		waiters = waiters[1:]
		ch <- struct{}{}
		n--
	}

	if len(waiters) == 0 {
		delete(s.waiters, key)
	} else {
		s.waiters[key] = waiters
	}
}

// LRange returns all elements of the list at key, head first.
func (s *Store) LRange(_ context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lrangeLocked(key)
}

func (s *Store) lrangeLocked(key string) ([]string, error) {
	e, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	if e.kind != kindList {
		return nil, store.ErrWrongType
	}

	out := make([]string, len(e.list))
	copy(out, e.list)
	return out, nil
}

// LLen returns the length of the list at key.
func (s *Store) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return 0, nil
	}
	if e.kind != kindList {
		return 0, store.ErrWrongType
	}

	return int64(len(e.list)), nil
}

// HSet stores a field-value pair in the hash at key.
func (s *Store) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hsetLocked(key, field, value)
}

func (s *Store) hsetLocked(key, field, value string) error {
	e, ok := s.lookup(key)
	if !ok {
		e = &entry{kind: kindHash, hash: make(map[string]string)}
		s.data[key] = e
	}
	if e.kind != kindHash {
		return store.ErrWrongType
	}

	e.hash[field] = value
	return nil
}

// HDel removes fields from the hash at key.
func (s *Store) HDel(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hdelLocked(key, fields...)
}

func (s *Store) hdelLocked(key string, fields ...string) error {
	e, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if e.kind != kindHash {
		return store.ErrWrongType
	}

	for _, field := range fields {
		delete(e.hash, field)
	}
	if len(e.hash) == 0 {
		delete(s.data, key)
	}

	return nil
}

// HGetAll returns all field-value pairs of the hash at key.
func (s *Store) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hgetallLocked(key)
}

func (s *Store) hgetallLocked(key string) (map[string]string, error) {
	e, ok := s.lookup(key)
	if !ok {
		return map[string]string{}, nil
	}
	if e.kind != kindHash {
		return nil, store.ErrWrongType
	}

	out := make(map[string]string, len(e.hash))
	for f, v := range e.hash {
		out[f] = v
	}

	return out, nil
}

// HExists reports whether field is present in the hash at key.
func (s *Store) HExists(_ context.Context, key, field string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return false, nil
	}
	if e.kind != kindHash {
		return false, store.ErrWrongType
	}

	_, ok = e.hash[field]
	return ok, nil
}

// HLen returns the number of fields in the hash at key.
func (s *Store) HLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return 0, nil
	}
	if e.kind != kindHash {
		return 0, store.ErrWrongType
	}

	return int64(len(e.hash)), nil
}

// Time returns the store's notion of the current time.
func (s *Store) Time(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.clock(), nil
}
