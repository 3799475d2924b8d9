package semaphore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

// Version written once at pool creation; pools created by older protocol
// versions have it backfilled lazily.
const schemaVersion = "1"

const (
	// existsToken is the marker value test-and-set into the exists key.
	existsToken = "1"

	// creationWindow bounds how long a half-created keyspace survives if
	// the creating process crashes before the flag is made permanent.
	creationWindow = 10 * time.Second

	// reclaimLockTTL is the dead-man's switch on the reclamation mutex.
	reclaimLockTTL = 10 * time.Second
)

// ErrEmptyName is returned when a semaphore is constructed without a name.
var ErrEmptyName = errors.New("empty semaphore name")

// ErrWaitInterrupted is returned when a blocking acquire comes back without
// a token while the context is still live. A store whose forever-blocking
// pop can give up on its own is the only way to hit it.
var ErrWaitInterrupted = errors.New("token wait interrupted")

// Semaphore is a handle on a distributed counting semaphore backed by a
// remote key-value store. Any number of processes may hold handles on the
// same named semaphore concurrently; a single handle is safe for use from
// multiple goroutines.
type Semaphore struct {
	store        store.Store
	name         string
	resources    int
	expiration   time.Duration
	staleTimeout time.Duration
	localTime    atomic.Bool
	keys         keyspace

	mu   sync.Mutex
	held []Token // LIFO stack of tokens acquired through this handle
}

// New creates a handle on the semaphore identified by name. The pool itself
// is created lazily in the store by the first handle to touch it.
func New(st store.Store, name string, opts ...Option) (*Semaphore, error) {
	if name == "" {
		return nil, ErrEmptyName
	}

	s := &Semaphore{
		store:     st,
		name:      name,
		resources: 1,
		keys:      newKeyspace(name),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.resources < 1 {
		s.resources = 1
	}

	return s, nil
}

// Name returns the semaphore identity.
func (s *Semaphore) Name() string {
	return s.name
}

// Resources returns the configured pool capacity N.
func (s *Semaphore) Resources() int {
	return s.resources
}

// EnsureExists initializes the pool if no process has done so yet. The
// existence flag is test-and-set atomically, so exactly one of any number
// of racing callers performs the creation; the flag carries a transient
// expiry during the creation window and is made permanent afterwards.
func (s *Semaphore) EnsureExists(ctx context.Context) error {
	_, existed, err := s.store.GetSet(ctx, s.keys.exists(), existsToken)
	if err != nil {
		return fmt.Errorf("check existence flag: %w", err)
	}

	if !existed {
		if err := s.store.Expire(ctx, s.keys.exists(), creationWindow); err != nil {
			return fmt.Errorf("arm creation window: %w", err)
		}

		return s.create(ctx)
	}

	// Pools made by older protocol versions miss the version marker.
	hasVersion, err := s.store.Exists(ctx, s.keys.version())
	if err != nil {
		return fmt.Errorf("check version marker: %w", err)
	}
	if !hasVersion {
		if err := s.store.Set(ctx, s.keys.version(), schemaVersion); err != nil {
			return fmt.Errorf("backfill version marker: %w", err)
		}
	}

	return nil
}

// create - resets the keyspace to a full pool of tokens 0..N-1 in one
// indivisible batch and makes the existence flag permanent.
func (s *Semaphore) create(ctx context.Context) error {
	tokens := make([]string, 0, s.resources)
	for i := 0; i < s.resources; i++ {
		tokens = append(tokens, IndexToken(i).String())
	}

	err := s.store.Tx(ctx, func(tx store.Tx) error {
		tx.Del(s.keys.grabbed(), s.keys.available())
		tx.RPush(s.keys.available(), tokens...)
		tx.Set(s.keys.version(), schemaVersion)
		tx.Persist(s.keys.exists())
		s.expireIn(tx)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create pool: %w", err)
	}

	logger.Debug("semaphore pool created",
		zap.String("name", s.name), zap.Int("resources", s.resources))

	return nil
}

// Delete removes the whole keyspace. Best-effort teardown: there is no
// rollback if it is interrupted partway.
func (s *Semaphore) Delete(ctx context.Context) error {
	return s.store.Del(ctx, s.keys.all()...)
}

// Available returns the number of free slots. A pool nobody has touched yet
// reports its full capacity.
func (s *Semaphore) Available(ctx context.Context) (int64, error) {
	exists, err := s.store.Exists(ctx, s.keys.exists())
	if err != nil {
		return 0, err
	}
	if !exists {
		return int64(s.resources), nil
	}

	return s.store.LLen(ctx, s.keys.available())
}

// Acquire leases a token, blocking until one is free or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) (Token, error) {
	tok, ok, err := s.acquire(ctx, 0, true)
	if err != nil {
		return Token{}, err
	}
	if !ok {
		// The store's forever-blocking pop only comes back empty-handed
		// when the wait was interrupted.
		if cerr := ctx.Err(); cerr != nil {
			return Token{}, cerr
		}
		return Token{}, ErrWaitInterrupted
	}

	return tok, nil
}

// AcquireTimeout leases a token, blocking up to timeout. A non-positive
// timeout means a single non-blocking attempt, never an unbounded wait.
// ok is false when the pool stayed empty for the whole wait.
func (s *Semaphore) AcquireTimeout(ctx context.Context, timeout time.Duration) (tok Token, ok bool, err error) {
	if timeout <= 0 {
		return s.acquire(ctx, 0, false)
	}

	return s.acquire(ctx, timeout, true)
}

// TryAcquire makes a single non-blocking attempt to lease a token.
func (s *Semaphore) TryAcquire(ctx context.Context) (Token, bool, error) {
	return s.acquire(ctx, 0, false)
}

func (s *Semaphore) acquire(ctx context.Context, timeout time.Duration, block bool) (Token, bool, error) {
	if err := s.EnsureExists(ctx); err != nil {
		return Token{}, false, err
	}

	if s.staleTimeout > 0 {
		if err := s.ReclaimStale(ctx); err != nil {
			return Token{}, false, err
		}
	}

	var (
		raw string
		ok  bool
		err error
	)
	if block {
		raw, ok, err = s.store.BLPop(ctx, s.keys.available(), timeout)
	} else {
		raw, ok, err = s.store.LPop(ctx, s.keys.available())
	}
	if err != nil || !ok {
		return Token{}, false, err
	}

	tok := ParseToken(raw)
	stamp := formatTime(s.now(ctx))
	if err := s.store.HSet(ctx, s.keys.grabbed(), tok.String(), stamp); err != nil {
		return Token{}, false, fmt.Errorf("register lease: %w", err)
	}

	s.mu.Lock()
	s.held = append(s.held, tok)
	s.mu.Unlock()

	logger.Debug("token acquired",
		zap.String("name", s.name), zap.Stringer("token", tok))

	return tok, true, nil
}

// Do leases a token, runs fn with it and releases the token on every exit
// path, blocking until a token is free or ctx is done.
func (s *Semaphore) Do(ctx context.Context, fn func(ctx context.Context, tok Token) error) error {
	tok, err := s.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := s.ReleaseToken(ctx, tok); rerr != nil {
			logger.Warn("scoped release failed",
				zap.String("name", s.name), zap.Stringer("token", tok), zap.Error(rerr))
		}
	}()

	return fn(ctx, tok)
}

// DoTimeout is Do with AcquireTimeout semantics. ok is false and fn never
// runs when no token could be leased within timeout.
func (s *Semaphore) DoTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, tok Token) error) (bool, error) {
	tok, ok, err := s.AcquireTimeout(ctx, timeout)
	if err != nil || !ok {
		return false, err
	}
	defer func() {
		if rerr := s.ReleaseToken(ctx, tok); rerr != nil {
			logger.Warn("scoped release failed",
				zap.String("name", s.name), zap.Stringer("token", tok), zap.Error(rerr))
		}
	}()

	return true, fn(ctx, tok)
}

// Release returns the most recently acquired token of this handle to the
// pool. ok is false when the handle holds nothing.
func (s *Semaphore) Release(ctx context.Context) (tok Token, ok bool, err error) {
	s.mu.Lock()
	n := len(s.held)
	if n == 0 {
		s.mu.Unlock()
		return Token{}, false, nil
	}
	tok = s.held[n-1]
	s.held = s.held[:n-1]
	s.mu.Unlock()

	if err := s.signal(ctx, tok); err != nil {
		return tok, false, err
	}

	return tok, true, nil
}

// ReleaseToken returns the given token to the pool, whether or not it was
// acquired through this handle.
func (s *Semaphore) ReleaseToken(ctx context.Context, tok Token) error {
	s.mu.Lock()
	for i := len(s.held) - 1; i >= 0; i-- {
		if s.held[i] == tok {
			s.held = append(s.held[:i], s.held[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	return s.signal(ctx, tok)
}

// ReleaseReclaimedSlot mints a fresh opaque token and pushes it into the
// pool, recovering a slot whose original token was lost with its holder.
func (s *Semaphore) ReleaseReclaimedSlot(ctx context.Context) (Token, error) {
	tok, err := s.MintUniqueToken(ctx)
	if err != nil {
		return Token{}, err
	}

	return tok, s.signal(ctx, tok)
}

// signal - the atomic release: drop the lease record, push the token onto
// the pool tail and reapply the key-expiry policy, all in one batch.
func (s *Semaphore) signal(ctx context.Context, tok Token) error {
	err := s.store.Tx(ctx, func(tx store.Tx) error {
		tx.HDel(s.keys.grabbed(), tok.String())
		tx.RPush(s.keys.available(), tok.String())
		s.expireIn(tx)
		return nil
	})
	if err != nil {
		return fmt.Errorf("signal token %s: %w", tok, err)
	}

	logger.Debug("token released",
		zap.String("name", s.name), zap.Stringer("token", tok))

	return nil
}

// expireIn - queues the configured key-expiry policy for the whole keyspace.
func (s *Semaphore) expireIn(tx store.Tx) {
	if s.expiration <= 0 {
		return
	}

	for _, key := range s.keys.all() {
		tx.Expire(key, s.expiration)
	}
}

// IsTokenLocked reports whether tok is currently leased by any holder.
func (s *Semaphore) IsTokenLocked(ctx context.Context, tok Token) (bool, error) {
	return s.store.HExists(ctx, s.keys.grabbed(), tok.String())
}

// IsLocked reports whether any token held by this handle is currently
// registered as leased.
func (s *Semaphore) IsLocked(ctx context.Context) (bool, error) {
	s.mu.Lock()
	held := make([]Token, len(s.held))
	copy(held, s.held)
	s.mu.Unlock()

	for _, tok := range held {
		locked, err := s.IsTokenLocked(ctx, tok)
		if err != nil {
			return false, err
		}
		if locked {
			return true, nil
		}
	}

	return false, nil
}

// AllTokens returns the union of free and leased tokens, read atomically.
func (s *Semaphore) AllTokens(ctx context.Context) ([]Token, error) {
	var (
		free    *store.StringsResult
		grabbed *store.MapResult
	)
	err := s.store.Tx(ctx, func(tx store.Tx) error {
		free = tx.LRange(s.keys.available())
		grabbed = tx.HGetAll(s.keys.grabbed())
		return nil
	})
	if err != nil {
		return nil, err
	}

	tokens := make([]Token, 0, len(free.Val())+len(grabbed.Val()))
	for _, raw := range free.Val() {
		tokens = append(tokens, ParseToken(raw))
	}
	for raw := range grabbed.Val() {
		tokens = append(tokens, ParseToken(raw))
	}

	return tokens, nil
}

// MintUniqueToken generates a random opaque token absent from the pool at
// the instant of the check. Uniqueness holds at generation time only; two
// concurrent minters can in principle pick the same value before either
// commits it.
func (s *Semaphore) MintUniqueToken(ctx context.Context) (Token, error) {
	for {
		candidate := OpaqueToken(uuid.NewString())

		existing, err := s.AllTokens(ctx)
		if err != nil {
			return Token{}, err
		}

		taken := false
		for _, tok := range existing {
			if tok == candidate {
				taken = true
				break
			}
		}
		if !taken {
			return candidate, nil
		}
	}
}

// now returns the lease clock: store time by default, degrading permanently
// to the local wall clock for this handle after a failed server-time query.
func (s *Semaphore) now(ctx context.Context) time.Time {
	if !s.localTime.Load() {
		t, err := s.store.Time(ctx)
		if err == nil {
			return t
		}

		s.localTime.Store(true)
		logger.Warn("store time query failed, using local clock from now on",
			zap.String("name", s.name), zap.Error(err))
	}

	return time.Now()
}
