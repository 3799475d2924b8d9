package tcp

import "time"

// Replies are read into a fixed buffer; 4 KB fits every response the
// store protocol produces.
const defaultBufferSize = 4 << 10

// ClientOption configures a Client created by NewClient.
type ClientOption func(*Client)

// WithClientIdleTimeout bounds how long the connection may sit idle
// before reads and writes give up.
func WithClientIdleTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.idleTimeout = timeout
	}
}

// WithClientBufferSize overrides the reply buffer size.
func WithClientBufferSize(size uint) ClientOption {
	return func(c *Client) {
		c.bufferSize = int(size)
	}
}
