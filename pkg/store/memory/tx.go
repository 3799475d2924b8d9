package memory

import (
	"context"
	"time"

	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

// tx queues commands as closures over the locked store; the whole queue is
// applied under the single keyspace mutex, so other callers never observe a
// partially applied batch.
type tx struct {
	ops []func(s *Store) error
}

// Tx queues the commands issued inside fn and commits them atomically.
func (s *Store) Tx(_ context.Context, fn func(tx store.Tx) error) error {
	t := new(tx)
	if err := fn(t); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, op := range t.ops {
		if err := op(s); err != nil {
			return err
		}
	}

	return nil
}

func (t *tx) Set(key, value string) {
	t.ops = append(t.ops, func(s *Store) error {
		s.setLocked(key, value)
		return nil
	})
}

func (t *tx) Del(keys ...string) {
	t.ops = append(t.ops, func(s *Store) error {
		for _, key := range keys {
			delete(s.data, key)
		}
		return nil
	})
}

func (t *tx) Expire(key string, ttl time.Duration) {
	t.ops = append(t.ops, func(s *Store) error {
		s.expireLocked(key, ttl)
		return nil
	})
}

func (t *tx) Persist(key string) {
	t.ops = append(t.ops, func(s *Store) error {
		s.persistLocked(key)
		return nil
	})
}

func (t *tx) RPush(key string, values ...string) {
	t.ops = append(t.ops, func(s *Store) error {
		return s.rpushLocked(key, values...)
	})
}

func (t *tx) HSet(key, field, value string) {
	t.ops = append(t.ops, func(s *Store) error {
		return s.hsetLocked(key, field, value)
	})
}

func (t *tx) HDel(key string, fields ...string) {
	t.ops = append(t.ops, func(s *Store) error {
		return s.hdelLocked(key, fields...)
	})
}

func (t *tx) LRange(key string) *store.StringsResult {
	res := new(store.StringsResult)
	t.ops = append(t.ops, func(s *Store) error {
		vals, err := s.lrangeLocked(key)
		if err != nil {
			return err
		}
		res.SetVal(vals)
		return nil
	})

	return res
}

func (t *tx) HGetAll(key string) *store.MapResult {
	res := new(store.MapResult)
	t.ops = append(t.ops, func(s *Store) error {
		vals, err := s.hgetallLocked(key)
		if err != nil {
			return err
		}
		res.SetVal(vals)
		return nil
	})

	return res
}
