package tcp

import (
	"errors"
	"fmt"
	"net"
	"time"
)

var (
	ErrTimeout         = errors.New("connection timed out")
	ErrSmallBufferSize = errors.New("small buffer size")
)

func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}

// Client represents a TCP client connection.
type Client struct {
	connection  net.Conn      // The TCP connection for the client.
	idleTimeout time.Duration // Timeout for idle connection.
	bufferSize  int           // The buffer size for reading data.
}

// NewClient creates a new client with the given address and options.
func NewClient(address string, options ...ClientOption) (*Client, error) {
	connection, err := net.Dial("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	client := &Client{connection: connection}
	for _, opt := range options {
		opt(client)
	}

	if client.bufferSize == 0 {
		client.bufferSize = defaultBufferSize
	}

	return client, nil
}

// Send sends a request to the server and returns the response.
func (c *Client) Send(request []byte) ([]byte, error) {
	return c.SendWait(request, 0)
}

// SendWait sends a request whose reply may legitimately take up to wait to
// arrive (a blocking pop), extending the read deadline accordingly.
func (c *Client) SendWait(request []byte, wait time.Duration) ([]byte, error) {
	if err := c.setDeadline(wait); err != nil {
		return nil, fmt.Errorf("failed to set deadline for connection: %w", err)
	}

	if _, err := c.connection.Write(request); err != nil {
		if isTimeout(err) {
			return nil, errors.Join(ErrTimeout, err)
		}

		return nil, fmt.Errorf("error writing to connection: %w", err)
	}

	response := make([]byte, c.bufferSize)
	n, err := c.connection.Read(response)
	if err != nil {
		if isTimeout(err) {
			return nil, errors.Join(ErrTimeout, err)
		}

		return nil, err
	}

	if n == c.bufferSize {
		return nil, ErrSmallBufferSize
	}
	if n == 0 {
		return nil, errors.New("empty message")
	}

	return response[:n], nil
}

// setDeadline - rolls the connection deadline forward before each exchange.
// A zero wait on a connection without an idle timeout clears the deadline,
// letting a forever-blocking pop block forever.
func (c *Client) setDeadline(wait time.Duration) error {
	if c.idleTimeout == 0 && wait == 0 {
		return c.connection.SetDeadline(time.Time{})
	}

	if wait == 0 && c.idleTimeout > 0 {
		return c.connection.SetDeadline(time.Now().Add(c.idleTimeout))
	}

	return c.connection.SetDeadline(time.Now().Add(wait + c.idleTimeout + time.Second))
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.connection != nil {
		return c.connection.Close()
	}

	return nil
}
