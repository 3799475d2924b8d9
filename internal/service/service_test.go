package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preisanalytics/redis-semaphore/internal/compute"
	"github.com/preisanalytics/redis-semaphore/internal/service"
	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
)

func newService(t *testing.T, username, password string) *service.Service {
	t.Helper()
	logger.MockLogger()

	svc, err := service.New(compute.NewParser(), memory.New(), username, password)
	require.NoError(t, err)
	return svc
}

func TestHandleQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("string commands round-trip", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "set foo bar"))
		assert.Equal(t, "[ok] bar", svc.HandleQuery(ctx, sess, "get foo"))
		assert.Equal(t, "[ok] bar", svc.HandleQuery(ctx, sess, "getset foo baz"))
		assert.Equal(t, "[ok] (nil)", svc.HandleQuery(ctx, sess, "getset fresh v"))
		assert.Equal(t, "[ok] 1", svc.HandleQuery(ctx, sess, "exists foo"))
		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "del foo"))
		assert.Equal(t, "[ok] 0", svc.HandleQuery(ctx, sess, "exists foo"))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "get foo")))
	})

	t.Run("list and hash commands", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "rpush q a b"))
		assert.Equal(t, "[ok] 2", svc.HandleQuery(ctx, sess, "llen q"))
		assert.Equal(t, "[ok] a b", svc.HandleQuery(ctx, sess, "lrange q"))
		assert.Equal(t, "[ok] a", svc.HandleQuery(ctx, sess, "lpop q"))
		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "hset h f v"))
		assert.Equal(t, "[ok] 1", svc.HandleQuery(ctx, sess, "hexists h f"))
		assert.Equal(t, "[ok] f v", svc.HandleQuery(ctx, sess, "hgetall h"))
		assert.Equal(t, "[ok] 1", svc.HandleQuery(ctx, sess, "hlen h"))
	})

	t.Run("blpop with zero wait on an empty list", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		// 0 means block forever; cancel the context to bound the test.
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		assert.True(t, service.IsError(svc.HandleQuery(cctx, sess, "blpop q 0")))

		assert.Equal(t, "[ok] (nil)", svc.HandleQuery(ctx, sess, "blpop q 0.05"))
	})

	t.Run("time returns fractional unix seconds", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		reply := svc.HandleQuery(ctx, sess, "time")
		body, ok := service.CutOK(reply)
		require.True(t, ok)
		assert.Contains(t, body, ".")
	})

	t.Run("parse errors are wrapped", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "")))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "nonsense")))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "expire k soon")))
	})
}

func TestAuth(t *testing.T) {
	ctx := context.Background()

	t.Run("commands require auth when a password is set", func(t *testing.T) {
		svc := newService(t, "root", "secret")
		sess := new(service.Session)

		reply := svc.HandleQuery(ctx, sess, "set foo bar")
		assert.True(t, service.IsError(reply))
		assert.Contains(t, reply, service.ErrAuthenticationRequired.Error())
	})

	t.Run("wrong credentials are rejected", func(t *testing.T) {
		svc := newService(t, "root", "secret")
		sess := new(service.Session)

		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "auth root wrong")))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "auth other secret")))
		assert.False(t, sess.Authenticated)
	})

	t.Run("valid credentials unlock the session", func(t *testing.T) {
		svc := newService(t, "root", "secret")
		sess := new(service.Session)

		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "auth root secret"))
		assert.True(t, sess.Authenticated)
		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "set foo bar"))
	})

	t.Run("auth is a no-op without a configured password", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "auth any thing"))
	})
}

func TestMulti(t *testing.T) {
	ctx := context.Background()

	t.Run("queued batch commits atomically", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		require.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "multi"))
		assert.Equal(t, "[ok] queued", svc.HandleQuery(ctx, sess, "rpush q a b"))
		assert.Equal(t, "[ok] queued", svc.HandleQuery(ctx, sess, "hset h f v"))
		assert.Equal(t, "[ok] queued", svc.HandleQuery(ctx, sess, "lrange q"))

		reply := svc.HandleQuery(ctx, sess, "exec")
		lines := strings.Split(reply, "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "[ok]", lines[0])
		assert.Equal(t, "[ok]", lines[1])
		assert.Equal(t, "[ok] a b", lines[2])
	})

	t.Run("discard drops the queue", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		require.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "multi"))
		assert.Equal(t, "[ok] queued", svc.HandleQuery(ctx, sess, "set foo bar"))
		assert.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "discard"))
		assert.Equal(t, "[ok] 0", svc.HandleQuery(ctx, sess, "exists foo"))
	})

	t.Run("non-queueable commands are rejected inside multi", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		require.Equal(t, "[ok]", svc.HandleQuery(ctx, sess, "multi"))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "blpop q 1")))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "multi")))
	})

	t.Run("exec without multi fails", func(t *testing.T) {
		svc := newService(t, "", "")
		sess := new(service.Session)

		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "exec")))
		assert.True(t, service.IsError(svc.HandleQuery(ctx, sess, "discard")))
	})
}
