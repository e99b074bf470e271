package fakeserver

import (
	"context"
	"errors"
	"sync"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/protocol"
)

// ErrSessionClosed is returned when sending on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Session is one client connection accepted by a Server.
type Session struct {
	ID   int
	Kind transport.Kind

	conn     transport.Conn
	outgoing chan []byte
	done     chan struct{}
	once     sync.Once
}

func newSession(id int, kind transport.Kind, conn transport.Conn) *Session {
	return &Session{
		ID:       id,
		Kind:     kind,
		conn:     conn,
		outgoing: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

// Send encodes p for the session's transport and queues it.
func (s *Session) Send(p *protocol.Packet) error {
	var (
		data []byte
		err  error
	)
	if s.Kind == transport.WebSocket {
		data, err = protocol.EncodeTextFrame(p)
	} else {
		data, err = protocol.EncodeBinaryFrame(p)
	}
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw queues data as is.
func (s *Session) SendRaw(data []byte) error {
	select {
	case s.outgoing <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close drops the connection.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Done is closed once the session is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.outgoing:
			if err := s.conn.Write(context.Background(), data); err != nil {
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
