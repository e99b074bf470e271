package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/omochice/fcchat/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServerConn is the server side of a websocket chat connection.
type ServerConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewServerConn wraps an upgraded gorilla connection.
func NewServerConn(conn *websocket.Conn) *ServerConn {
	return &ServerConn{conn: conn}
}

// Read implements transport.Conn.
func (c *ServerConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Write implements transport.Conn.
// Writes a text message to the WebSocket connection.
func (c *ServerConn) Write(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close implements transport.Conn.
func (c *ServerConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *ServerConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Handler serves one upgraded connection. The connection is closed when
// the handler returns.
type Handler func(conn transport.Conn)

// Server upgrades HTTP requests on any path to websocket connections.
type Server struct {
	address  string
	listener net.Listener
	handler  Handler
	logger   *slog.Logger
	server   *http.Server
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a WebSocket server that serves connections with handler.
func New(address string, handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		handler: handler,
		logger:  logger,
		conns:   make(map[*websocket.Conn]struct{}),
	}
}

// Listen binds the listening socket. Addr is valid once it returns.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to start WebSocket server: %w", err)
	}
	s.listener = listener

	s.server = &http.Server{Handler: http.HandlerFunc(s.handleWebSocket)}
	s.logger.Info("WebSocket server started", "addr", listener.Addr().String())
	return nil
}

// Serve serves connections on a listener bound by Listen.
func (s *Server) Serve() error {
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the WebSocket server and closes every open connection.
func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
	}
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// URL returns the ws:// URL of the server.
func (s *Server) URL() string {
	return "ws://" + s.Addr() + "/fcsl"
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	s.handler(NewServerConn(conn))
}
