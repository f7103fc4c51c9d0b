package daemon

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"

	"github.com/dispatchd/dispatchd/internal/apiv1"
)

// Server owns the gRPC listener over a Unix socket, adapted from the
// teacher's internal/daemon/server.go with the database dependency dropped
// (this daemon keeps no persistent store).
type Server struct {
	socketPath string
	grpcServer *grpc.Server
	grpcImpl   *GRPCServer
	listener   net.Listener

	mu      sync.Mutex
	running bool
}

// NewServer wraps impl in a gRPC server listening on socketPath.
func NewServer(socketPath string, impl *GRPCServer) *Server {
	grpcServer := grpc.NewServer()
	apiv1.RegisterDaemonServiceServer(grpcServer, impl)

	return &Server{
		socketPath: socketPath,
		grpcServer: grpcServer,
		grpcImpl:   impl,
	}
}

// SocketPath returns the socket path this server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening and serving gRPC requests; it blocks until Stop is
// called or an error occurs.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("daemon: server already running")
	}
	s.mu.Unlock()

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: removing stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o755); err != nil {
		return fmt.Errorf("daemon: creating socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("daemon: listening on socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("daemon: setting socket permissions: %w", err)
	}

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	return s.grpcServer.Serve(listener)
}

// Stop gracefully stops the server, forcing a stop if ctx's deadline expires
// first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("daemon: removing socket file: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GRPCServer returns the underlying GRPCServer, for wiring or testing.
func (s *Server) GRPCServer() *GRPCServer {
	return s.grpcImpl
}
