package tcp

import "time"

const defaultBufferSize = 4 << 10 // per-connection read buffer

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerIdleTimeout closes connections that stay silent longer
// than timeout.
func WithServerIdleTimeout(timeout time.Duration) ServerOption {
	return func(s *Server) {
		s.idleTimeout = timeout
	}
}

// WithServerBufferSize sets the per-connection read buffer size.
func WithServerBufferSize(size uint) ServerOption {
	return func(s *Server) {
		s.bufferSize = size
	}
}

// WithServerMaxConnectionsNumber caps the number of simultaneously
// served connections.
func WithServerMaxConnectionsNumber(count uint) ServerOption {
	return func(s *Server) {
		s.maxConnections = count
	}
}
