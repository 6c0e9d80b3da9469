package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"sync"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/internal/logger"
)

// Handler answers control requests for a running daemon
type Handler interface {
	Status() []display.Stats
	Stop() error
}

// SocketServer serves the control socket of a running daemon
type SocketServer struct {
	mu         sync.Mutex
	listener   net.Listener
	socketPath string
	handler    Handler
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	running    bool
}

// NewSocketServer creates a socket server. An empty path selects
// DefaultSocketPath.
func NewSocketServer(path string, handler Handler) (*SocketServer, error) {
	if path == "" {
		var err error
		if path, err = DefaultSocketPath(); err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &SocketServer{
		socketPath: path,
		handler:    handler,
	}, nil
}

// Path returns the socket path
func (s *SocketServer) Path() string {
	return s.socketPath
}

// Start starts the socket server
func (s *SocketServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	// Remove a stale socket left by a crashed daemon
	if err := os.RemoveAll(s.socketPath); err != nil {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create socket listener: %w", err)
	}

	// user only
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.listener = listener
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.acceptConnections(ctx)

	logger.Info("Control socket listening", "path", s.socketPath)
	return nil
}

// Stop stops the socket server and removes the socket file
func (s *SocketServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	s.cancel()
	s.listener.Close()
	s.wg.Wait()

	os.RemoveAll(s.socketPath)
	logger.Debug("Control socket stopped")
}

func (s *SocketServer) acceptConnections(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Errorf("Failed to accept connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(ctx, conn)
	}
}

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// unblock reads on shutdown
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		msg, err := readMessage(conn)
		if err != nil {
			logger.Debugf("Control connection closed: %v", err)
			return
		}

		if err := writeMessage(conn, s.handleMessage(msg)); err != nil {
			logger.Errorf("Failed to send response: %v", err)
			return
		}
	}
}

func (s *SocketServer) handleMessage(msg Message) Message {
	switch msg.Type {
	case MessageStatus:
		return Message{Type: MessageStatusResponse, Displays: s.handler.Status()}
	case MessageStop:
		if err := s.handler.Stop(); err != nil {
			return Message{Type: MessageError, Error: err.Error()}
		}
		return Message{Type: MessageAck}
	default:
		return Message{Type: MessageError, Error: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}
}

// DefaultSocketPath returns /run/openvd.sock for root and
// /tmp/openvd-{username}.sock otherwise
func DefaultSocketPath() (string, error) {
	if os.Geteuid() == 0 {
		return "/run/openvd.sock", nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %w", err)
	}
	return filepath.Join("/tmp", fmt.Sprintf("openvd-%s.sock", currentUser.Username)), nil
}
