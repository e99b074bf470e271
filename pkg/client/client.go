// Package client keeps a persistent connection to a chat server, decodes
// the packets it sends and feeds them into a model.Registry.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/internal/transport/tcp"
	"github.com/omochice/fcchat/internal/transport/ws"
	"github.com/omochice/fcchat/pkg/model"
	"github.com/omochice/fcchat/pkg/protocol"
)

// State is the connection state of a Client.
type State int

const (
	// StateIdle means not connected and not trying to connect.
	StateIdle State = iota
	// StatePending means a connection attempt is in flight or scheduled.
	StatePending
	// StateActive means the transport is open.
	StateActive
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePending:
		return "PENDING"
	case StateActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

var defaultRegistry = sync.OnceValue(func() *model.Registry {
	return model.NewRegistry(nil)
})

// DefaultRegistry returns the registry used by clients created without
// Options.Registry.
func DefaultRegistry() *model.Registry {
	return defaultRegistry()
}

type streamAuth struct {
	cxid     int
	password string
	vidctx   string
}

// Client is one connection to the chat servers. It reconnects on its own
// until Disconnect is called.
type Client struct {
	opts      Options
	logger    *slog.Logger
	registry  *model.Registry
	metrics   *Metrics
	tracer    trace.Tracer
	pending   pendingTable
	listeners listeners

	dispatchMu sync.Mutex
	captureMu  sync.Mutex
	capture    *protocol.CaptureWriter

	mu             sync.Mutex
	state          State
	epoch          uint64
	conn           transport.Conn
	cancelDial     context.CancelFunc
	stopKeepAlive  chan struct{}
	loginTimer     *time.Timer
	reconnectTimer *time.Timer
	backoff        *backoff.ExponentialBackOff
	waiters        map[chan error]struct{}

	manual       bool
	choseToLogIn bool
	attached     bool
	username     string
	password     string
	sessionID    int
	uid          int

	connectedAt time.Time
	lastPacket  time.Time
	lastState   time.Time

	tokens          int
	completedModels bool
	completedTags   bool
	roomHelper      map[int]bool
	clubShows       map[int]struct{}
	stream          streamAuth
}

// New creates an idle Client.
func New(opts Options) *Client {
	opts = opts.withDefaults()
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	c := &Client{
		opts:     opts,
		logger:   opts.Logger.With("platform", opts.Platform.String(), "transport", opts.Transport.String()),
		registry: opts.Registry,
		metrics:  opts.Metrics,
		tracer:   tp.Tracer(tracerName),
		backoff: &backoff.ExponentialBackOff{
			InitialInterval:     opts.Reconnect.Initial,
			RandomizationFactor: 0,
			Multiplier:          opts.Reconnect.Multiplier,
			MaxInterval:         opts.Reconnect.Max,
		},
		waiters:    make(map[chan error]struct{}),
		username:   opts.Username,
		password:   opts.Password,
		roomHelper: make(map[int]bool),
		clubShows:  make(map[int]struct{}),
	}
	c.backoff.Reset()
	if opts.Capture != nil {
		c.capture = protocol.NewCaptureWriter(opts.Capture)
	}
	return c
}

// Registry returns the registry the client merges into.
func (c *Client) Registry() *model.Registry {
	return c.registry
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the session id assigned at login, or 0.
func (c *Client) SessionID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// UID returns the user id assigned at login.
func (c *Client) UID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// Username returns the current user name. Guests get a server assigned
// name at login.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.username
}

// Tokens returns the token balance last reported by the server.
func (c *Client) Tokens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Uptime returns how long the current connection has been active.
func (c *Client) Uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateActive || c.connectedAt.IsZero() {
		return 0
	}
	return time.Since(c.connectedAt)
}

// IsRoomHelper reports whether the client may moderate the room of model
// uid.
func (c *Client) IsRoomHelper(uid int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomHelper[uid]
}

// Connect starts connecting and returns once the connection is active.
// When doLogin is set the client logs in after every (re)connect. Connect
// fails on manual disconnect, after Options.ConnectionTimeout, or when ctx
// is done; in the last two cases the client keeps trying in the
// background.
func (c *Client) Connect(ctx context.Context, doLogin bool) error {
	c.mu.Lock()
	c.logger.Debug("connect", "login", doLogin, "state", c.state.String())
	switch c.state {
	case StateActive:
		c.mu.Unlock()
		return nil
	case StatePending:
		c.mu.Unlock()
		return c.EnsureConnected(ctx, c.opts.ConnectionTimeout)
	}

	c.choseToLogIn = doLogin
	c.setStateLocked(StatePending)
	w := c.addWaiterLocked()
	c.startAttemptLocked()
	c.mu.Unlock()

	return c.awaitConnection(ctx, w, c.opts.ConnectionTimeout)
}

// EnsureConnected returns nil once the client is active. It does not
// start a connection. A zero timeout waits forever and NoWait does not
// wait at all.
func (c *Client) EnsureConnected(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	switch {
	case c.state == StateActive:
		c.mu.Unlock()
		return nil
	case c.state == StateIdle:
		c.mu.Unlock()
		return ErrNotConnected
	case timeout == NoWait:
		c.mu.Unlock()
		return ErrNotConnected
	}
	w := c.addWaiterLocked()
	c.mu.Unlock()

	return c.awaitConnection(ctx, w, timeout)
}

// Disconnect closes the connection and stops reconnecting. The state has
// settled to Idle when it returns.
func (c *Client) Disconnect(_ context.Context) error {
	if c.State() == StateIdle {
		return nil
	}
	c.emit(Event{Type: EventManualDisconnect})

	c.mu.Lock()
	if c.state == StateIdle {
		c.mu.Unlock()
		return nil
	}
	c.manual = true
	c.stopTimersLocked()

	if c.state != StateActive {
		c.epoch++
		if c.cancelDial != nil {
			c.cancelDial()
			c.cancelDial = nil
		}
		c.setStateLocked(StateIdle)
		c.manual = false
		c.resolveWaitersLocked(ErrManualDisconnect)
		c.mu.Unlock()
		c.pending.connectionLost("manual disconnect")
		return nil
	}
	epoch := c.epoch
	c.mu.Unlock()

	c.disconnected(epoch, "manual disconnect")
	return nil
}

func (c *Client) setStateLocked(s State) {
	if c.state != s {
		c.logger.Debug("state", "from", c.state.String(), "to", s.String())
	}
	c.state = s
}

func (c *Client) addWaiterLocked() chan error {
	w := make(chan error, 1)
	c.waiters[w] = struct{}{}
	return w
}

func (c *Client) resolveWaitersLocked(err error) {
	for w := range c.waiters {
		w <- err
		delete(c.waiters, w)
	}
}

func (c *Client) awaitConnection(ctx context.Context, w chan error, timeout time.Duration) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case err := <-w:
		return err
	case <-expired:
		c.dropWaiter(w)
		return fmt.Errorf("%w: no connection after %s", ErrTimeout, timeout)
	case <-ctx.Done():
		c.dropWaiter(w)
		return ctx.Err()
	}
}

func (c *Client) dropWaiter(w chan error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.waiters, w)
}

// startAttemptLocked begins a new connection epoch and dials in the
// background.
func (c *Client) startAttemptLocked() {
	c.epoch++
	epoch := c.epoch
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelDial = cancel
	go c.dial(ctx, epoch)
}

func (c *Client) dial(ctx context.Context, epoch uint64) {
	conn, err := c.open(ctx)
	if err != nil {
		c.disconnected(epoch, fmt.Sprintf("error while connecting: %v", err))
		return
	}

	c.mu.Lock()
	if c.epoch != epoch || c.state != StatePending {
		c.mu.Unlock()
		conn.Close()
		return
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.conn = conn
	c.setStateLocked(StateActive)
	c.connectedAt = time.Now()
	c.lastPacket, c.lastState = time.Time{}, time.Time{}
	stop := make(chan struct{})
	c.stopKeepAlive = stop
	doLogin := c.choseToLogIn
	if doLogin {
		c.loginTimer = time.AfterFunc(c.opts.LoginTimeout, func() {
			c.logger.Info("server did not respond to the login request, retrying")
			c.disconnected(epoch, "server did not respond to the login request")
		})
	}
	c.resolveWaitersLocked(nil)
	c.mu.Unlock()

	c.logger.Info("connected", "server", conn.RemoteAddr())
	c.metrics.connected()
	go c.keepAlive(epoch, stop)
	go c.readLoop(epoch, conn)
	c.emit(Event{Type: EventConnected, DoLogin: doLogin})

	if doLogin {
		go func() {
			if err := c.Login(context.Background(), "", ""); err != nil {
				c.disconnected(epoch, fmt.Sprintf("login failed: %v", err))
			}
		}()
	}
}

func (c *Client) open(ctx context.Context) (transport.Conn, error) {
	base := c.opts.Platform.BaseDomain()

	if c.opts.Transport == transport.WebSocket {
		url := c.opts.Endpoint
		if url == "" {
			dir, err := c.directory(ctx)
			if err != nil {
				return nil, err
			}
			server, ok := dir.RandomWebsocketServer()
			if !ok {
				return nil, errors.New("no websocket servers in server config")
			}
			url = fmt.Sprintf("wss://%s.%s:%d/fcsl", server, base, protocol.WebSocketPort)
		}
		c.logger.Info("connecting to websocket server", "server", url)
		conn, err := ws.Dial(ctx, url, "https://m."+base, protocol.WebSocketHello)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	addr := c.opts.Endpoint
	if addr == "" {
		dir, err := c.directory(ctx)
		if err != nil {
			return nil, err
		}
		server, ok := dir.RandomChatServer()
		if !ok {
			return nil, errors.New("no chat servers in server config")
		}
		addr = fmt.Sprintf("%s.%s:%d", server, base, protocol.FlashPort)
	}
	c.logger.Info("connecting to chat server", "server", addr)
	conn, err := tcp.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) newDecoder() protocol.Decoder {
	if c.opts.Transport == transport.WebSocket {
		return protocol.NewTextDecoder(c.logger)
	}
	return protocol.NewBinaryDecoder()
}

func (c *Client) readLoop(epoch uint64, conn transport.Conn) {
	dec := c.newDecoder()
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			reason := "socket closed"
			if !errors.Is(err, io.EOF) {
				reason = fmt.Sprintf("socket error: %v", err)
			}
			c.disconnected(epoch, reason)
			return
		}

		packets, err := dec.Feed(data)
		for _, p := range packets {
			if !c.current(epoch) {
				return
			}
			c.record(p)
			c.handlePacket(p)
		}
		if err != nil {
			var fe *protocol.FramingError
			if errors.As(err, &fe) {
				c.metrics.framingError()
			}
			c.logger.Warn("dropping connection", "reason", err)
			c.disconnected(epoch, err.Error())
			return
		}
	}
}

func (c *Client) current(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch == epoch
}

func (c *Client) keepAlive(epoch uint64, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !c.keepAliveTick(epoch) {
				return
			}
		}
	}
}

// keepAliveTick pings the server, or drops a connection that went quiet.
// It reports whether the keepalive loop should go on.
func (c *Client) keepAliveTick(epoch uint64) bool {
	c.mu.Lock()
	if c.epoch != epoch || c.state != StateActive {
		c.mu.Unlock()
		return false
	}
	now := time.Now()
	last, lastState := c.lastPacket, c.lastState
	if last.IsZero() {
		last = c.connectedAt
	}
	if lastState.IsZero() {
		lastState = c.connectedAt
	}
	silent := now.Sub(last) > c.opts.SilenceTimeout
	stateSilent := c.choseToLogIn && now.Sub(lastState) > c.opts.StateSilenceTimeout
	c.mu.Unlock()

	if silent || stateSilent {
		c.logger.Info("server has not responded for too long, forcing disconnect",
			"last_packet", now.Sub(last), "last_state_packet", now.Sub(lastState))
		c.disconnected(epoch, "server has not responded for too long")
		return false
	}
	if err := c.TxCmd(protocol.FCTypeNull, 0, 0, 0, ""); err != nil {
		c.logger.Debug("keepalive failed", "error", err)
	}
	return true
}

func (c *Client) stopTimersLocked() {
	if c.stopKeepAlive != nil {
		close(c.stopKeepAlive)
		c.stopKeepAlive = nil
	}
	if c.loginTimer != nil {
		c.loginTimer.Stop()
		c.loginTimer = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// disconnected tears down connection epoch and, unless the disconnect was
// requested, schedules the next attempt. Calls for stale epochs are
// ignored, so every connection is torn down once.
func (c *Client) disconnected(epoch uint64, reason string) {
	c.mu.Lock()
	if c.state == StateIdle || epoch != c.epoch {
		c.mu.Unlock()
		return
	}

	wasActive := c.state == StateActive
	c.epoch++
	conn := c.conn
	c.conn = nil
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.stopTimersLocked()
	c.sessionID = 0
	c.tokens = 0
	c.connectedAt, c.lastPacket, c.lastState = time.Time{}, time.Time{}, time.Time{}
	c.completedModels, c.completedTags = false, false
	clear(c.roomHelper)
	clear(c.clubShows)
	c.stream = streamAuth{}

	wasLoggedIn := c.choseToLogIn
	detach := c.attached
	c.attached = false
	if c.password == "guest" && strings.HasPrefix(c.username, "Guest") {
		c.username = "guest"
	}

	manual := c.manual
	var delay time.Duration
	if !manual {
		c.setStateLocked(StatePending)
		delay = c.backoff.NextBackOff()
		next := c.epoch
		c.reconnectTimer = time.AfterFunc(delay, func() { c.reconnect(next) })
	} else {
		c.setStateLocked(StateIdle)
		c.manual = false
		c.resolveWaitersLocked(ErrManualDisconnect)
	}
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.pending.connectionLost(reason)

	if manual {
		c.logger.Info("disconnected")
	} else {
		c.logger.Info("disconnected", "reason", reason, "reconnect_in", delay)
	}
	c.metrics.disconnected(wasActive, manual, delay)

	remaining := c.registry.LoggedIn()
	if detach {
		remaining = c.registry.Detach()
	}
	c.emit(Event{Type: EventDisconnected, WasLoggedIn: wasLoggedIn, Reason: reason, ReconnectIn: delay})
	if remaining == 0 {
		c.registry.Reset()
	}
}

func (c *Client) reconnect(epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch || c.state != StatePending {
		return
	}
	c.reconnectTimer = nil
	c.logger.Debug("reconnecting", "login", c.choseToLogIn)
	c.startAttemptLocked()
}
