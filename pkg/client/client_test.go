package client_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preisanalytics/redis-semaphore/pkg/client"
)

type fakeConn struct {
	replies  map[string]string
	sendErr  error
	requests []string
	closed   bool
}

func (c *fakeConn) Send(request []byte) ([]byte, error) {
	c.requests = append(c.requests, string(request))
	if c.sendErr != nil {
		return nil, c.sendErr
	}

	return []byte(c.replies[string(request)]), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestSend(t *testing.T) {
	t.Run("forwards the query and returns the raw reply", func(t *testing.T) {
		conn := &fakeConn{replies: map[string]string{"get foo": "[ok] bar"}}
		c := client.NewWithConn(conn)

		response, err := c.Send("get foo")
		require.NoError(t, err)
		assert.Equal(t, "[ok] bar", response)
		assert.Equal(t, []string{"get foo"}, conn.requests)
	})

	t.Run("propagates transport errors", func(t *testing.T) {
		conn := &fakeConn{sendErr: errors.New("boom")}
		c := client.NewWithConn(conn)

		_, err := c.Send("get foo")
		assert.Error(t, err)
	})
}

func TestClose(t *testing.T) {
	conn := new(fakeConn)
	c := client.NewWithConn(conn)

	require.NoError(t, c.Close())
	assert.True(t, conn.closed)
}

func TestNewValidation(t *testing.T) {
	t.Run("empty address is rejected", func(t *testing.T) {
		_, err := client.New(&client.Config{})
		assert.Error(t, err)
	})

	t.Run("bad max message size is rejected", func(t *testing.T) {
		_, err := client.New(&client.Config{
			Address:        "localhost:1",
			MaxMessageSize: "not-a-size",
		})
		assert.Error(t, err)
	})
}
