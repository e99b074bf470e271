// Package transport abstracts the byte streams chat frames travel over.
package transport

import (
	"context"
	"fmt"
	"strings"
)

// Conn abstracts a bidirectional connection for both TCP and WebSocket.
type Conn interface {
	// Read returns the next chunk of data. Chunks do not respect frame
	// boundaries. Returns io.EOF when the connection is closed.
	Read(ctx context.Context) ([]byte, error)

	// Write sends one encoded command or frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}

// Kind selects the transport used to reach a chat server.
type Kind int

const (
	// TCP carries binary frames over a plain socket.
	TCP Kind = iota
	// WebSocket carries text frames over a websocket.
	WebSocket
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case TCP:
		return "tcp"
	case WebSocket:
		return "websocket"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind parses a kind name as produced by String. "ws" is accepted for
// WebSocket.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "tcp", "binary", "flash":
		return TCP, nil
	case "websocket", "ws", "text":
		return WebSocket, nil
	default:
		return 0, fmt.Errorf("unknown transport %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
