package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrKeyNotFound is returned when a key does not exist in the store.
	ErrKeyNotFound = errors.New("key not found")

	// ErrWrongType is returned when a command is applied to a key holding a
	// value of another type (e.g. a list command on a plain string).
	ErrWrongType = errors.New("wrong value type for key")
)

// Store is the capability contract a backing key-value store must satisfy
// to host semaphore state. Single commands are atomic; multi-command
// sequences that must be atomic go through Tx.
type Store interface {
	// Get retrieves the string value of key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores a string value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// GetSet atomically writes value and returns the previous value.
	// The second result reports whether a previous value existed.
	GetSet(ctx context.Context, key, value string) (string, bool, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
	// Expire sets a time-to-live on key. Expired keys behave as deleted.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// Persist removes any time-to-live from key.
	Persist(ctx context.Context, key string) error

	// RPush appends values to the tail of the list at key.
	RPush(ctx context.Context, key string, values ...string) error
	// LPop removes and returns the head of the list at key.
	// The second result is false when the list is empty or missing.
	LPop(ctx context.Context, key string) (string, bool, error)
	// BLPop removes and returns the head of the list at key, waiting up to
	// timeout for an element to arrive. A zero timeout blocks until an
	// element arrives or ctx is done. The second result is false when the
	// wait expired empty-handed.
	BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
	// LRange returns all elements of the list at key, head first.
	LRange(ctx context.Context, key string) ([]string, error)
	// LLen returns the length of the list at key (0 when missing).
	LLen(ctx context.Context, key string) (int64, error)

	// HSet stores a field-value pair in the hash at key.
	HSet(ctx context.Context, key, field, value string) error
	// HDel removes fields from the hash at key.
	HDel(ctx context.Context, key string, fields ...string) error
	// HGetAll returns all field-value pairs of the hash at key.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HExists reports whether field is present in the hash at key.
	HExists(ctx context.Context, key, field string) (bool, error)
	// HLen returns the number of fields in the hash at key.
	HLen(ctx context.Context, key string) (int64, error)

	// Time returns the store's notion of the current time.
	Time(ctx context.Context) (time.Time, error)

	// Tx queues the commands issued inside fn and commits them as one
	// indivisible batch, invisible to other observers until commit.
	// Read results become available after Tx returns.
	Tx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx queues commands for an atomic batch. Mutations take effect at commit;
// reads are answered at commit and delivered through result cells.
type Tx interface {
	Set(key, value string)
	Del(keys ...string)
	Expire(key string, ttl time.Duration)
	Persist(key string)
	RPush(key string, values ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)

	LRange(key string) *StringsResult
	HGetAll(key string) *MapResult
}

// StringsResult holds a deferred list read, filled when the batch commits.
type StringsResult struct {
	vals []string
}

// Val returns the read result. Valid only after the transaction committed.
func (r *StringsResult) Val() []string { return r.vals }

// SetVal fills the result cell. Intended for Store implementations.
func (r *StringsResult) SetVal(vals []string) { r.vals = vals }

// MapResult holds a deferred hash read, filled when the batch commits.
type MapResult struct {
	vals map[string]string
}

// Val returns the read result. Valid only after the transaction committed.
func (r *MapResult) Val() map[string]string { return r.vals }

// SetVal fills the result cell. Intended for Store implementations.
func (r *MapResult) SetVal(vals map[string]string) { r.vals = vals }
