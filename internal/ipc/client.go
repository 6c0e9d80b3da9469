package ipc

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bnema/openvd/internal/display"
	"github.com/bnema/openvd/internal/logger"
)

// ErrNotRunning is returned when no daemon listens on the socket
var ErrNotRunning = errors.New("openvd is not running")

// Client talks to a running daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client. An empty path selects DefaultSocketPath.
func NewClient(path string) (*Client, error) {
	if path == "" {
		var err error
		if path, err = DefaultSocketPath(); err != nil {
			return nil, fmt.Errorf("failed to get socket path: %w", err)
		}
	}

	return &Client{
		socketPath: path,
		timeout:    5 * time.Second,
	}, nil
}

// SetTimeout changes the per-request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Status returns the stats of every display of the daemon
func (c *Client) Status() ([]display.Stats, error) {
	resp, err := c.send(Message{Type: MessageStatus})
	if err != nil {
		return nil, err
	}

	switch resp.Type {
	case MessageStatusResponse:
		return resp.Displays, nil
	case MessageError:
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	default:
		return nil, fmt.Errorf("unexpected response type: %s", resp.Type)
	}
}

// Stop asks the daemon to shut down
func (c *Client) Stop() error {
	resp, err := c.send(Message{Type: MessageStop})
	if err != nil {
		return err
	}

	switch resp.Type {
	case MessageAck:
		return nil
	case MessageError:
		return fmt.Errorf("daemon error: %s", resp.Error)
	default:
		return fmt.Errorf("unexpected response type: %s", resp.Type)
	}
}

// IsRunning reports whether a daemon answers on the socket
func (c *Client) IsRunning() bool {
	_, err := c.Status()
	return err == nil
}

func (c *Client) send(msg Message) (Message, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		if isNotListening(err) {
			return Message{}, ErrNotRunning
		}
		return Message{}, fmt.Errorf("failed to connect to openvd: %w", err)
	}
	defer func() {
		if err := conn.Close(); err != nil {
			logger.Errorf("Failed to close control connection: %v", err)
		}
	}()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		logger.Warnf("Failed to set connection deadline: %v", err)
	}

	if err := writeMessage(conn, msg); err != nil {
		return Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	resp, err := readMessage(conn)
	if err != nil {
		return Message{}, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, nil
}

// isNotListening reports dial errors that mean no daemon is there
func isNotListening(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
