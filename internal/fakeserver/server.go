// Package fakeserver is a scriptable chat server for exercising clients
// against real sockets.
package fakeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/internal/transport/tcp"
	"github.com/omochice/fcchat/internal/transport/ws"
	"github.com/omochice/fcchat/pkg/protocol"
)

// Handler reacts to one command received from a session.
type Handler func(s *Session, cmd protocol.Command)

// Received pairs a command with the session that sent it.
type Received struct {
	Session *Session
	Command protocol.Command
}

// Server accepts chat clients over one transport kind.
type Server struct {
	kind    transport.Kind
	hub     *Hub
	logger  *slog.Logger
	tcp     *tcp.Server
	ws      *ws.Server
	nextID  atomic.Int64
	hellos  atomic.Int64
	handler atomic.Pointer[Handler]

	commands chan Received
	sessions chan *Session
	wg       sync.WaitGroup
}

// Start starts a server for kind on a random local port. handler may be
// nil.
func Start(kind transport.Kind, handler Handler, logger *slog.Logger) (*Server, error) {
	return StartAt(kind, "127.0.0.1:0", handler, logger)
}

// StartAt is Start listening on address.
func StartAt(kind transport.Kind, address string, handler Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		kind:     kind,
		hub:      NewHub(),
		logger:   logger,
		commands: make(chan Received, 1024),
		sessions: make(chan *Session, 64),
	}
	s.SetHandler(handler)

	var (
		listen func() error
		serve  func() error
	)
	if kind == transport.WebSocket {
		s.ws = ws.New(address, s.serve, logger)
		listen, serve = s.ws.Listen, s.ws.Serve
	} else {
		s.tcp = tcp.New(address, s.serve, logger)
		listen, serve = s.tcp.Listen, s.tcp.Serve
	}
	if err := listen(); err != nil {
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := serve(); err != nil {
			logger.Error("fake server stopped", "error", err)
		}
	}()
	return s, nil
}

// SetHandler replaces the command handler.
func (s *Server) SetHandler(h Handler) {
	s.handler.Store(&h)
}

// Endpoint returns the address clients dial: host:port for TCP, a ws://
// URL for WebSocket.
func (s *Server) Endpoint() string {
	if s.ws != nil {
		return s.ws.URL()
	}
	return s.tcp.Addr()
}

// Stop closes every session and the listener.
func (s *Server) Stop() {
	s.hub.CloseAll()
	if s.ws != nil {
		s.ws.Stop()
	} else {
		s.tcp.Stop()
	}
	s.wg.Wait()
}

// Hub returns the sessions hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Hellos returns how many websocket hello messages were received.
func (s *Server) Hellos() int {
	return int(s.hellos.Load())
}

// Accepted returns how many connections were accepted so far.
func (s *Server) Accepted() int {
	return int(s.nextID.Load())
}

// Commands returns every received command in arrival order.
func (s *Server) Commands() <-chan Received {
	return s.commands
}

// WaitCommand discards received commands until one of type t arrives.
func (s *Server) WaitCommand(ctx context.Context, t protocol.FCType) (Received, error) {
	for {
		select {
		case r := <-s.commands:
			if r.Command.Type == t {
				return r, nil
			}
		case <-ctx.Done():
			return Received{}, fmt.Errorf("waiting for %s: %w", t, ctx.Err())
		}
	}
}

// WaitSession returns the next accepted session.
func (s *Server) WaitSession(ctx context.Context) (*Session, error) {
	select {
	case sess := <-s.sessions:
		return sess, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a session: %w", ctx.Err())
	}
}

func (s *Server) serve(conn transport.Conn) {
	sess := newSession(int(s.nextID.Add(1)), s.kind, conn)
	s.hub.Register(sess)
	defer s.hub.Unregister(sess)
	defer sess.Close()

	go sess.writeLoop()

	select {
	case s.sessions <- sess:
	default:
	}

	dec := protocol.NewBinaryDecoder()
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			return
		}

		var cmds []protocol.Command
		if s.kind == transport.WebSocket {
			if string(data) == protocol.WebSocketHello {
				s.hellos.Add(1)
				continue
			}
			cmd, err := protocol.ParseTextCommand(string(data))
			if err != nil {
				s.logger.Warn("bad text command", "data", strings.TrimSpace(string(data)), "error", err)
				continue
			}
			cmds = append(cmds, cmd)
		} else {
			packets, err := dec.Feed(data)
			for _, p := range packets {
				cmds = append(cmds, commandFromPacket(p))
			}
			if err != nil {
				s.logger.Warn("bad binary command", "error", err)
				return
			}
		}

		for _, cmd := range cmds {
			select {
			case s.commands <- Received{Session: sess, Command: cmd}:
			default:
				s.logger.Warn("command buffer full, dropping", "fctype", cmd.Type)
			}
			if h := *s.handler.Load(); h != nil {
				h(sess, cmd)
			}
		}
	}
}

func commandFromPacket(p *protocol.Packet) protocol.Command {
	cmd := protocol.Command{Type: p.Type, From: p.From, To: p.To, Arg1: p.Arg1, Arg2: p.Arg2}
	switch v := p.Payload.(type) {
	case nil:
	case string:
		cmd.Payload = v
	default:
		if b, err := json.Marshal(v); err == nil {
			cmd.Payload = string(b)
		}
	}
	return cmd
}

// LoginResponder answers every LOGIN command with a successful login for
// the given session id, uid and username.
func LoginResponder(sessionID, uid int, username string) Handler {
	return func(s *Session, cmd protocol.Command) {
		if cmd.Type != protocol.FCTypeLogin {
			return
		}
		_ = s.Send(protocol.NewPacket(protocol.FCTypeLogin, 0, sessionID, protocol.ResponseSuccess, uid, len(username), username))
	}
}

// Chain runs handlers in order.
func Chain(handlers ...Handler) Handler {
	return func(s *Session, cmd protocol.Command) {
		for _, h := range handlers {
			if h != nil {
				h(s, cmd)
			}
		}
	}
}
