package client

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/preisanalytics/redis-semaphore/pkg/client/tcp"
	"github.com/preisanalytics/redis-semaphore/pkg/sizeutil"
)

var ErrWriteLineFailed = errors.New("write line failed")

// Conn - interface for the underlying network client.
type Conn interface {
	Close() error
	Send(request []byte) ([]byte, error)
}

// Config holds the connection settings for the store client.
type Config struct {
	Address        string        `json:"address"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	IdleTimeout    time.Duration `json:"idleTimeout"`
	MaxMessageSize string        `json:"maxMessageSize"`
}

// Client is an interactive client for the store daemon.
type Client struct {
	conn Conn
}

// New dials the daemon and, when credentials are configured, authenticates
// the connection.
func New(cfg *Config) (*Client, error) {
	if cfg.Address == "" {
		return nil, errors.New("empty address")
	}

	tcpClientOpts := make([]tcp.ClientOption, 0)
	if cfg.IdleTimeout > 0 {
		tcpClientOpts = append(tcpClientOpts, tcp.WithClientIdleTimeout(cfg.IdleTimeout))
	}

	if cfg.MaxMessageSize != "" {
		size, err := sizeutil.ParseSize(cfg.MaxMessageSize)
		if err != nil {
			return nil, fmt.Errorf("parse max message size '%s' failed: %w", cfg.MaxMessageSize, err)
		}
		tcpClientOpts = append(tcpClientOpts, tcp.WithClientBufferSize(uint(size)))
	}

	conn, err := tcp.NewClient(cfg.Address, tcpClientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init tcp client failed: %w", err)
	}

	client := NewWithConn(conn)
	if cfg.Password != "" {
		if err := client.auth(cfg.Username, cfg.Password); err != nil {
			conn.Close()
			return nil, err
		}
	}

	return client, nil
}

// NewWithConn wraps an already-established connection.
func NewWithConn(conn Conn) *Client {
	return &Client{conn: conn}
}

func (c *Client) auth(username, password string) error {
	response, err := c.Send(fmt.Sprintf("auth %s %s", username, password))
	if err != nil {
		return err
	}

	if strings.HasPrefix(response, "[error]") {
		return errors.New(response)
	}

	return nil
}

// Send sends a query to the daemon and returns the raw response.
func (c *Client) Send(query string) (string, error) {
	resBytes, err := c.conn.Send([]byte(query))
	if err != nil {
		return "", err
	}

	return string(resBytes), nil
}

// CLI runs a read-eval-print loop over the connection until "exit" or an
// interrupt.
func (c *Client) CLI(rl *readline.Instance) error {
	defer func() {
		rl.Close()

		if err := c.conn.Close(); err != nil {
			if _, err = rl.Write([]byte(fmt.Sprintf("failed to close client connection: %s", err.Error()))); err != nil {
				return
			}
		}
	}()

	for {
		query, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				return nil
			}

			if _, err = rl.Write([]byte(fmt.Sprintf("failed to read stdin: %s", err.Error()))); err != nil {
				return errors.Join(ErrWriteLineFailed, err)
			}
			continue
		}

		query = strings.TrimSpace(query)
		if query == "" {
			continue
		}
		if query == "exit" {
			return nil
		}

		response, err := c.Send(query)
		if err != nil {
			if errors.Is(err, syscall.EPIPE) ||
				errors.Is(err, tcp.ErrTimeout) ||
				errors.Is(err, syscall.ECONNRESET) {
				return err
			}

			if _, err = rl.Write([]byte(fmt.Sprintf("failed to send query: %s", err.Error()))); err != nil {
				return errors.Join(ErrWriteLineFailed, err)
			}
			continue
		}

		if _, err = rl.Write([]byte(response + "\n")); err != nil {
			return errors.Join(ErrWriteLineFailed, err)
		}
	}
}

// Close - closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
