package remote

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store"
)

// txOp is one queued command plus a hook that absorbs its reply line.
type txOp struct {
	args []string
	fill func(body string) error
}

// tx records the commands issued inside a Tx callback. Nothing goes over
// the wire until the whole queue is replayed inside MULTI/EXEC.
type tx struct {
	ops []txOp
}

func (t *tx) queue(fill func(string) error, args ...string) {
	t.ops = append(t.ops, txOp{args: args, fill: fill})
}

func (t *tx) Set(key, value string) {
	t.queue(nil, "set", key, value)
}

func (t *tx) Del(keys ...string) {
	t.queue(nil, append([]string{"del"}, keys...)...)
}

func (t *tx) Expire(key string, ttl time.Duration) {
	t.queue(nil, "expire", key, formatSeconds(ttl))
}

func (t *tx) Persist(key string) {
	t.queue(nil, "persist", key)
}

func (t *tx) RPush(key string, values ...string) {
	t.queue(nil, append([]string{"rpush", key}, values...)...)
}

func (t *tx) HSet(key, field, value string) {
	t.queue(nil, "hset", key, field, value)
}

func (t *tx) HDel(key string, fields ...string) {
	t.queue(nil, append([]string{"hdel", key}, fields...)...)
}

func (t *tx) LRange(key string) *store.StringsResult {
	res := new(store.StringsResult)
	t.queue(func(body string) error {
		res.SetVal(strings.Fields(body))
		return nil
	}, "lrange", key)

	return res
}

func (t *tx) HGetAll(key string) *store.MapResult {
	res := new(store.MapResult)
	t.queue(func(body string) error {
		m, err := parsePairs(body)
		if err != nil {
			return err
		}
		res.SetVal(m)
		return nil
	}, "hgetall", key)

	return res
}

// Tx replays the recorded queue through MULTI/EXEC and distributes the
// per-command reply lines back into the deferred result cells.
func (s *Store) Tx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t := new(tx)
	if err := fn(t); err != nil {
		return err
	}
	if len(t.ops) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.roundTrip(0, "multi"); err != nil {
		return err
	}

	for _, op := range t.ops {
		if _, err := s.roundTrip(0, op.args...); err != nil {
			// The session may be left mid-transaction if this fails too.
			if _, derr := s.roundTrip(0, "discard"); derr != nil {
				logger.Warn("discard after failed queue", zap.Error(derr))
			}
			return err
		}
	}

	reply, err := s.conn.Send([]byte("exec"))
	if err != nil {
		return err
	}

	lines := strings.Split(strings.TrimRight(string(reply), "\r\n"), "\n")
	if len(lines) == 1 && len(t.ops) > 1 {
		// A failed commit comes back as a single error line.
		_, err := unwrap(lines[0])
		if err != nil {
			return err
		}
	}
	if len(lines) != len(t.ops) {
		return fmt.Errorf("%w: %d replies for %d queued commands",
			ErrProtocol, len(lines), len(t.ops))
	}

	for i, op := range t.ops {
		body, err := unwrap(lines[i])
		if err != nil {
			return err
		}
		if op.fill != nil {
			if err := op.fill(body); err != nil {
				return err
			}
		}
	}

	return nil
}
