package semaphore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/semaphore"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
)

func TestReclaimStale(t *testing.T) {
	logger.MockLogger()
	ctx := context.Background()

	t.Run("abandoned leases return to the pool", func(t *testing.T) {
		clock := newFakeClock()
		st := memory.New(memory.WithClock(clock.Now))

		crashed, err := semaphore.New(st, "stale",
			semaphore.WithResources(3), semaphore.WithStaleClientTimeout(time.Minute))
		require.NoError(t, err)

		first, err := crashed.Acquire(ctx)
		require.NoError(t, err)
		second, err := crashed.Acquire(ctx)
		require.NoError(t, err)

		clock.Advance(2 * time.Minute)

		reclaimer, err := semaphore.New(st, "stale",
			semaphore.WithResources(3), semaphore.WithStaleClientTimeout(time.Minute))
		require.NoError(t, err)
		require.NoError(t, reclaimer.ReclaimStale(ctx))

		for _, tok := range []semaphore.Token{first, second} {
			locked, err := reclaimer.IsTokenLocked(ctx, tok)
			require.NoError(t, err)
			assert.False(t, locked, "token %s must leave the grabbed registry", tok)
		}

		n, err := reclaimer.Available(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("fresh leases survive a pass", func(t *testing.T) {
		clock := newFakeClock()
		st := memory.New(memory.WithClock(clock.Now))

		sem, err := semaphore.New(st, "fresh",
			semaphore.WithResources(2), semaphore.WithStaleClientTimeout(time.Hour))
		require.NoError(t, err)

		tok, err := sem.Acquire(ctx)
		require.NoError(t, err)

		clock.Advance(time.Minute)
		require.NoError(t, sem.ReclaimStale(ctx))

		locked, err := sem.IsTokenLocked(ctx, tok)
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("a pass without a configured threshold is a no-op", func(t *testing.T) {
		st := memory.New()
		sem, err := semaphore.New(st, "nothreshold", semaphore.WithResources(2))
		require.NoError(t, err)

		tok, err := sem.Acquire(ctx)
		require.NoError(t, err)
		require.NoError(t, sem.ReclaimStale(ctx))

		locked, err := sem.IsTokenLocked(ctx, tok)
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("a concurrent reclaimer skips the pass", func(t *testing.T) {
		clock := newFakeClock()
		st := memory.New(memory.WithClock(clock.Now))

		sem, err := semaphore.New(st, "locked",
			semaphore.WithResources(1), semaphore.WithStaleClientTimeout(time.Minute))
		require.NoError(t, err)

		tok, err := sem.Acquire(ctx)
		require.NoError(t, err)
		clock.Advance(2 * time.Minute)

		require.NoError(t, st.Set(ctx, "SEMAPHORE:locked:RELEASE_LOCK", "1"))
		require.NoError(t, sem.ReclaimStale(ctx))

		locked, err := sem.IsTokenLocked(ctx, tok)
		require.NoError(t, err)
		assert.True(t, locked, "nothing is reclaimed while another process holds the mutex")
	})
}

func TestReconcile(t *testing.T) {
	logger.MockLogger()
	ctx := context.Background()

	t.Run("lost canonical tokens are restored", func(t *testing.T) {
		st := memory.New()
		sem, err := semaphore.New(st, "lost",
			semaphore.WithResources(3), semaphore.WithStaleClientTimeout(time.Minute))
		require.NoError(t, err)
		require.NoError(t, sem.EnsureExists(ctx))

		// Two holders popped a token and crashed before registering it
		// anywhere: the tokens are gone from both collections.
		for i := 0; i < 2; i++ {
			_, ok, err := st.LPop(ctx, availableKey("lost"))
			require.NoError(t, err)
			require.True(t, ok)
		}

		require.NoError(t, sem.ReclaimStale(ctx))

		n, err := sem.Available(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		tokens, err := sem.AllTokens(ctx)
		require.NoError(t, err)
		indices := make(map[int]bool)
		for _, tok := range tokens {
			if idx, ok := tok.Index(); ok {
				indices[idx] = true
			}
		}
		assert.Equal(t, map[int]bool{0: true, 1: true, 2: true}, indices)
	})

	t.Run("injection is capped by the distinct token count", func(t *testing.T) {
		st := memory.New()
		sem, err := semaphore.New(st, "capped",
			semaphore.WithResources(3), semaphore.WithStaleClientTimeout(time.Hour))
		require.NoError(t, err)
		require.NoError(t, sem.EnsureExists(ctx))

		// Slot 0's canonical token vanished with a crashed holder, and a
		// minted opaque token logically occupies another slot.
		_, ok, err := st.LPop(ctx, availableKey("capped"))
		require.NoError(t, err)
		require.True(t, ok)
		_, err = sem.ReleaseReclaimedSlot(ctx)
		require.NoError(t, err)

		require.NoError(t, sem.ReclaimStale(ctx))

		tokens, err := sem.AllTokens(ctx)
		require.NoError(t, err)
		assert.Len(t, tokens, 3, "reconciliation must never push the pool above capacity")
	})

	t.Run("full pool needs no repair", func(t *testing.T) {
		st := memory.New()
		sem, err := semaphore.New(st, "whole",
			semaphore.WithResources(2), semaphore.WithStaleClientTimeout(time.Hour))
		require.NoError(t, err)
		require.NoError(t, sem.EnsureExists(ctx))

		require.NoError(t, sem.ReclaimStale(ctx))

		n, err := sem.Available(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)
	})
}
