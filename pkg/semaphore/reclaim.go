package semaphore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

// ReclaimStale scans the grabbed registry for leases older than the
// configured stale-client timeout and returns them to the pool. The whole
// pass runs inside the cross-process reclamation mutex, so at most one
// process reclaims at a time and two racing reclaimers can never re-issue
// the same abandoned token. A no-op when no stale timeout is configured.
func (s *Semaphore) ReclaimStale(ctx context.Context) error {
	if s.staleTimeout <= 0 {
		return nil
	}

	_, err := WithMutex(ctx, s.store, s.keys.releaseLock(), reclaimLockTTL,
		func(ctx context.Context) error {
			if err := s.releaseStale(ctx); err != nil {
				return err
			}

			return s.reconcile(ctx)
		})

	return err
}

// releaseStale - signals every grabbed token whose lease age exceeds the
// stale timeout. A timestamp that does not parse counts as stale: it was
// written by nothing we know how to wait for.
func (s *Semaphore) releaseStale(ctx context.Context) error {
	grabbed, err := s.store.HGetAll(ctx, s.keys.grabbed())
	if err != nil {
		return fmt.Errorf("scan grabbed registry: %w", err)
	}

	now := s.now(ctx)
	for raw, stamp := range grabbed {
		acquired, err := parseTime(stamp)
		if err != nil {
			logger.Warn("unreadable lease timestamp, reclaiming",
				zap.String("name", s.name), zap.String("token", raw), zap.Error(err))
		} else if now.Sub(acquired) <= s.staleTimeout {
			continue
		}

		tok := ParseToken(raw)
		if err := s.signal(ctx, tok); err != nil {
			return err
		}

		logger.Debug("stale lease reclaimed",
			zap.String("name", s.name), zap.Stringer("token", tok))
	}

	return nil
}

// reconcile - repairs slot-count shortfalls left by holders that crashed
// before their token was ever durably recorded. Both collections are read
// in one atomic snapshot; missing canonical tokens are injected only while
// the distinct token count stays below capacity, so an opaque token still
// occupying a slot is never doubled by its canonical twin.
func (s *Semaphore) reconcile(ctx context.Context) error {
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
		return fmt.Errorf("snapshot token sets: %w", err)
	}

	seen := make(map[string]struct{})
	present := make(map[int]struct{})
	collect := func(raw string) {
		if _, dup := seen[raw]; dup {
			return
		}
		seen[raw] = struct{}{}

		if idx, ok := ParseToken(raw).Index(); ok && idx < s.resources {
			present[idx] = struct{}{}
		}
	}
	for _, raw := range free.Val() {
		collect(raw)
	}
	for raw := range grabbed.Val() {
		collect(raw)
	}

	budget := s.resources - len(seen)
	if budget <= 0 {
		return nil
	}

	missing := make([]string, 0, budget)
	for i := 0; i < s.resources && len(missing) < budget; i++ {
		if _, ok := present[i]; !ok {
			missing = append(missing, IndexToken(i).String())
		}
	}
	if len(missing) == 0 {
		return nil
	}

	if err := s.store.RPush(ctx, s.keys.available(), missing...); err != nil {
		return fmt.Errorf("restore missing tokens: %w", err)
	}

	logger.Info("token shortfall repaired",
		zap.String("name", s.name), zap.Strings("tokens", missing))

	return nil
}
