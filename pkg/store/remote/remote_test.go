package remote_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preisanalytics/redis-semaphore/internal/compute"
	"github.com/preisanalytics/redis-semaphore/internal/service"
	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/semaphore"
	"github.com/preisanalytics/redis-semaphore/pkg/store"
	"github.com/preisanalytics/redis-semaphore/pkg/store/memory"
	"github.com/preisanalytics/redis-semaphore/pkg/store/remote"
)

// loopConn feeds requests straight into a Service, exercising the full
// wire round trip without a socket.
type loopConn struct {
	svc  *service.Service
	sess *service.Session
}

func (c *loopConn) Send(request []byte) ([]byte, error) {
	return c.SendWait(request, 0)
}

func (c *loopConn) SendWait(request []byte, _ time.Duration) ([]byte, error) {
	return []byte(c.svc.HandleQuery(context.Background(), c.sess, string(request))), nil
}

func (c *loopConn) Close() error { return nil }

// faultyConn fails a single chosen command and passes everything else to
// the underlying loopConn.
type faultyConn struct {
	*loopConn
	failOn string
	err    error
}

func (c *faultyConn) Send(request []byte) ([]byte, error) {
	return c.SendWait(request, 0)
}

func (c *faultyConn) SendWait(request []byte, wait time.Duration) ([]byte, error) {
	if strings.HasPrefix(string(request), c.failOn) {
		return nil, c.err
	}
	return c.loopConn.SendWait(request, wait)
}

func newRemote(t *testing.T) *remote.Store {
	t.Helper()
	logger.MockLogger()

	svc, err := service.New(compute.NewParser(), memory.New(), "", "")
	require.NoError(t, err)

	return remote.New(&loopConn{svc: svc, sess: new(service.Session)})
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()

	t.Run("strings round-trip", func(t *testing.T) {
		st := newRemote(t)

		require.NoError(t, st.Set(ctx, "foo", "bar"))
		val, err := st.Get(ctx, "foo")
		require.NoError(t, err)
		assert.Equal(t, "bar", val)

		prev, existed, err := st.GetSet(ctx, "foo", "baz")
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, "bar", prev)

		_, existed, err = st.GetSet(ctx, "fresh", "v")
		require.NoError(t, err)
		assert.False(t, existed)
	})

	t.Run("missing key maps to the sentinel", func(t *testing.T) {
		st := newRemote(t)

		_, err := st.Get(ctx, "nope")
		assert.ErrorIs(t, err, store.ErrKeyNotFound)

		ok, err := st.Exists(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("lists and hashes", func(t *testing.T) {
		st := newRemote(t)

		require.NoError(t, st.RPush(ctx, "q", "a", "b", "c"))
		n, err := st.LLen(ctx, "q")
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		vals, err := st.LRange(ctx, "q")
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, vals)

		val, ok, err := st.LPop(ctx, "q")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "a", val)

		require.NoError(t, st.HSet(ctx, "h", "f", "v"))
		m, err := st.HGetAll(ctx, "h")
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"f": "v"}, m)

		ok, err = st.HExists(ctx, "h", "f")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("blpop expiring empty-handed", func(t *testing.T) {
		st := newRemote(t)

		_, ok, err := st.BLPop(ctx, "q", 50*time.Millisecond)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("server time parses", func(t *testing.T) {
		st := newRemote(t)

		now, err := st.Time(ctx)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now(), now, time.Minute)
	})

	t.Run("transaction commits and fills reads", func(t *testing.T) {
		st := newRemote(t)

		var listing *store.StringsResult
		var fields *store.MapResult
		err := st.Tx(ctx, func(tx store.Tx) error {
			tx.RPush("q", "x", "y")
			tx.HSet("h", "f", "v")
			listing = tx.LRange("q")
			fields = tx.HGetAll("h")
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"x", "y"}, listing.Val())
		assert.Equal(t, map[string]string{"f": "v"}, fields.Val())
	})

	t.Run("failed queue discards the open transaction", func(t *testing.T) {
		logger.MockLogger()
		svc, err := service.New(compute.NewParser(), memory.New(), "", "")
		require.NoError(t, err)

		conn := &faultyConn{
			loopConn: &loopConn{svc: svc, sess: new(service.Session)},
			failOn:   "hset",
			err:      assert.AnError,
		}
		st := remote.New(conn)

		err = st.Tx(ctx, func(tx store.Tx) error {
			tx.Set("a", "1")
			tx.HSet("h", "f", "v")
			return nil
		})
		assert.ErrorIs(t, err, assert.AnError)

		// The discard went through: the session takes plain commands again
		// and nothing from the abandoned queue was applied.
		require.NoError(t, st.Set(ctx, "b", "2"))
		_, err = st.Get(ctx, "a")
		assert.ErrorIs(t, err, store.ErrKeyNotFound)
	})

	t.Run("callback error aborts before anything is sent", func(t *testing.T) {
		st := newRemote(t)

		wantErr := assert.AnError
		err := st.Tx(ctx, func(tx store.Tx) error {
			tx.Set("never", "written")
			return wantErr
		})
		assert.ErrorIs(t, err, wantErr)

		ok, err := st.Exists(ctx, "never")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

// The semaphore is the store's main consumer; run one lifecycle through
// the wire protocol end to end.
func TestSemaphoreOverRemote(t *testing.T) {
	ctx := context.Background()
	st := newRemote(t)

	sem, err := semaphore.New(st, "remote-pool", semaphore.WithResources(2))
	require.NoError(t, err)

	tok1, ok, err := sem.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	tok2, ok, err := sem.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, tok1, tok2)

	_, ok, err = sem.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, released, err := sem.Release(ctx)
	require.NoError(t, err)
	assert.True(t, released)

	avail, err := sem.Available(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, avail)
}
