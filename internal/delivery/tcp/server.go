package tcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/preisanalytics/redis-semaphore/pkg/logger"
	"github.com/preisanalytics/redis-semaphore/pkg/sync"
)

// Handler processes one request within a connection and returns the raw
// response bytes.
type Handler func(ctx context.Context, request []byte) []byte

// Server - a TCP server that feeds client queries into per-connection
// handlers, with connection limiting and idle timeouts.
type Server struct {
	address        string
	idleTimeout    time.Duration
	bufferSize     uint
	maxConnections uint
	semaphore      *sync.Semaphore

	activeConnections int32
}

// NewServer - creates a new instance of the TCP server.
func NewServer(address string, opts ...ServerOption) (*Server, error) {
	if address == "" {
		return nil, errors.New("empty address")
	}

	server := &Server{
		address:    address,
		bufferSize: defaultBufferSize,
	}

	for _, opt := range opts {
		opt(server)
	}

	if mcons := server.maxConnections; mcons > 0 {
		server.semaphore = sync.NewSemaphore(mcons)
	}

	return server, nil
}

// Start - listens on the configured address until ctx is done. newSession
// is invoked once per accepted connection, so each connection gets its own
// handler state.
func (s *Server) Start(ctx context.Context, newSession func() Handler) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	logger.Info("start server listening", zap.String("addr", s.address))

	go func() {
		<-ctx.Done()
		logger.Info("shutting down server...")
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				logger.Info("server stopped accepting new connections")
				return nil
			}

			logger.Warn("failed to accept connection", zap.Error(err))
			continue
		}
		logger.Debug("accept connection", zap.Stringer("remote_addr", conn.RemoteAddr()))

		s.semaphore.Acquire()
		atomic.AddInt32(&s.activeConnections, 1)
		go func() {
			defer func() {
				s.semaphore.Release()
				atomic.AddInt32(&s.activeConnections, -1)
			}()
			s.handleConnection(ctx, conn, newSession())
		}()
	}
}

// handleConnection - manages a single client connection lifecycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, handler Handler) {
	defer func() {
		if v := recover(); v != nil {
			logger.Error("captured panic", zap.Any("panic", v), zap.String("stack", string(debug.Stack())))
		}

		if err := conn.Close(); err != nil {
			logger.Warn("failed to close connection", zap.Error(err))
		}

		logger.Debug("client disconnected", zap.Stringer("address", conn.RemoteAddr()))
	}()

	buffer := make([]byte, s.bufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := s.read(conn, buffer)
			if err != nil || n == 0 {
				return
			}

			response := handler(ctx, buffer[:n])
			if _, err := conn.Write(response); err != nil {
				logger.Warn("failed to write data",
					zap.Stringer("address", conn.RemoteAddr()), zap.Error(err))
				return
			}
		}
	}
}

// read - reads data from a connection with timeout handling and buffer
// overflow protection.
func (s *Server) read(conn net.Conn, b []byte) (int, error) {
	if s.idleTimeout != 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
			logger.Warn("failed to set read deadline", zap.Error(err))
			return 0, err
		}
	}

	n, err := conn.Read(b)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			logger.Warn("connection timed out", zap.Stringer("remote_addr", conn.RemoteAddr()))
			return 0, err
		}

		if err == io.EOF {
			return 0, nil
		}

		logger.Error("error reading from connection", zap.Error(err))
		return 0, err
	}

	if n == int(s.bufferSize) {
		logger.Warn("buffer overflow", zap.Int("buffer_size_bytes", int(s.bufferSize)))
		return 0, errors.New("buffer overflow")
	}

	return n, nil
}

// ActiveConnections - returns the current number of active connections atomically.
func (s *Server) ActiveConnections() int32 {
	return atomic.LoadInt32(&s.activeConnections)
}
