package client_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/fcchat/internal/fakeserver"
	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/client"
	"github.com/omochice/fcchat/pkg/model"
	"github.com/omochice/fcchat/pkg/protocol"
)

const (
	testSessionID = 77
	testUID       = 12345
	testGuestName = "Guest12345"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(kind transport.Kind, endpoint string) client.Options {
	return client.Options{
		Transport:         kind,
		Endpoint:          endpoint,
		Logger:            quiet(),
		Registry:          model.NewRegistry(quiet()),
		LoginTimeout:      2 * time.Second,
		ConnectionTimeout: 2 * time.Second,
		JoinTimeout:       time.Second,
		RequestTimeout:    time.Second,
		Reconnect: client.ReconnectPolicy{
			Initial:    50 * time.Millisecond,
			Multiplier: 2,
			Max:        400 * time.Millisecond,
		},
	}
}

func start(t *testing.T, kind transport.Kind, handler fakeserver.Handler, tweak func(*client.Options)) (*fakeserver.Server, *client.Client) {
	t.Helper()
	srv, err := fakeserver.Start(kind, handler, quiet())
	require.NoError(t, err)
	t.Cleanup(srv.Stop)

	opts := testOptions(kind, srv.Endpoint())
	if tweak != nil {
		tweak(&opts)
	}
	c := client.New(opts)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })
	return srv, c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func recordEvents(c *client.Client) <-chan client.Event {
	ch := make(chan client.Event, 64)
	c.OnEvent(func(e client.Event) {
		select {
		case ch <- e:
		default:
		}
	})
	return ch
}

func waitEvent(t *testing.T, ch <-chan client.Event, typ client.EventType) client.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", typ)
			return client.Event{}
		}
	}
}

// loggedIn connects c with login and returns the server side session.
func loggedIn(t *testing.T, srv *fakeserver.Server, c *client.Client) *fakeserver.Session {
	t.Helper()
	ctx := testContext(t)
	events := recordEvents(c)
	require.NoError(t, c.Connect(ctx, true))
	waitEvent(t, events, client.EventLoggedIn)
	sess, err := srv.WaitSession(ctx)
	require.NoError(t, err)
	return sess
}

func TestClient_Login(t *testing.T) {
	tests := []struct {
		name    string
		kind    transport.Kind
		version int
	}{
		{name: "tcp", kind: transport.TCP, version: protocol.LoginVersionFlash},
		{name: "websocket", kind: transport.WebSocket, version: protocol.LoginVersionWebSocket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, c := start(t, tt.kind, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), nil)
			ctx := testContext(t)
			loggedIn(t, srv, c)

			assert.Equal(t, client.StateActive, c.State())
			assert.Equal(t, testSessionID, c.SessionID())
			assert.Equal(t, testUID, c.UID())
			assert.Equal(t, testGuestName, c.Username())
			assert.Equal(t, 1, c.Registry().LoggedIn())
			assert.Positive(t, c.Uptime())

			login, err := srv.WaitCommand(ctx, protocol.FCTypeLogin)
			require.NoError(t, err)
			assert.Equal(t, tt.version, login.Command.Arg1)
			assert.Equal(t, "1/guest:guest", login.Command.Payload)

			roomData, err := srv.WaitCommand(ctx, protocol.FCTypeRoomData)
			require.NoError(t, err)
			assert.Equal(t, protocol.ChanJoin, roomData.Command.Arg1)
			assert.Equal(t, testSessionID, roomData.Command.From)

			if tt.kind == transport.WebSocket {
				assert.Equal(t, 1, srv.Hellos())
			}
		})
	}
}

func TestClient_LoginRefused(t *testing.T) {
	refuse := func(s *fakeserver.Session, cmd protocol.Command) {
		if cmd.Type == protocol.FCTypeLogin {
			_ = s.Send(protocol.NewPacket(protocol.FCTypeLogin, 0, 0, protocol.ResponseError, 0, 0, nil))
		}
	}
	srv, c := start(t, transport.TCP, refuse, nil)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx, false))

	err := c.Login(ctx, "bob", "secret")
	require.ErrorIs(t, err, client.ErrLoginFailed)
	assert.Zero(t, c.SessionID())

	login, err := srv.WaitCommand(ctx, protocol.FCTypeLogin)
	require.NoError(t, err)
	assert.Equal(t, "1/bob:secret", login.Command.Payload)
}

type staticChallenger string

func (s staticChallenger) Challenge(context.Context, protocol.Platform) (string, error) {
	return string(s), nil
}

func TestClient_ModernLogin(t *testing.T) {
	handler := func(s *fakeserver.Session, cmd protocol.Command) {
		if cmd.Type != protocol.FCTypeLogin {
			return
		}
		if cmd.Arg1 == int(protocol.FCTypeExtData) {
			_ = s.Send(protocol.NewPacket(protocol.FCTypeExtData, 0, 0, int(protocol.FCTypeLogin), 0, 0, "tok3n"))
			return
		}
		_ = s.Send(protocol.NewPacket(protocol.FCTypeLogin, 0, testSessionID, protocol.ResponseSuccess, testUID, 0, testGuestName))
	}
	srv, c := start(t, transport.TCP, handler, func(o *client.Options) {
		o.ModernLogin = true
		o.Challenger = staticChallenger("answer42")
	})
	ctx := testContext(t)
	loggedIn(t, srv, c)

	challenge, err := srv.WaitCommand(ctx, protocol.FCTypeLogin)
	require.NoError(t, err)
	assert.Equal(t, int(protocol.FCTypeExtData), challenge.Command.Arg1)
	assert.Equal(t, "answer42", challenge.Command.Payload)

	login, err := srv.WaitCommand(ctx, protocol.FCTypeLogin)
	require.NoError(t, err)
	assert.Equal(t, protocol.LoginVersionFlash, login.Command.Arg1)
	assert.Equal(t, "tok3n@1/guest:guest", login.Command.Payload)
}

func TestClient_ModernLoginWithoutChallenger(t *testing.T) {
	_, c := start(t, transport.TCP, nil, func(o *client.Options) { o.ModernLogin = true })
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx, false))
	require.ErrorIs(t, c.Login(ctx, "", ""), client.ErrNoChallenger)
}

func TestClient_TwoFramesInOneChunk(t *testing.T) {
	srv, c := start(t, transport.TCP, nil, nil)
	ctx := testContext(t)
	require.NoError(t, c.Connect(ctx, false))
	sess, err := srv.WaitSession(ctx)
	require.NoError(t, err)

	packets := make(chan *protocol.Packet, 8)
	c.OnAnyPacket(func(p *protocol.Packet) { packets <- p })

	details, err := protocol.EncodeBinaryFrame(protocol.NewPacket(protocol.FCTypeDetails, 0, 0, 0, 0, 0, map[string]any{
		"sid": 501, "uid": 3111899, "lv": 4, "vs": 0, "nm": "AspenRae",
	}))
	require.NoError(t, err)
	state, err := protocol.EncodeBinaryFrame(protocol.NewPacket(protocol.FCTypeSessionState, 0, 0, 0, 0, 0, map[string]any{
		"sid": 501, "uid": 3111899, "m": map[string]any{"rc": 42},
	}))
	require.NoError(t, err)
	require.NoError(t, sess.SendRaw(append(details, state...)))

	var got []protocol.FCType
	for range 2 {
		select {
		case p := <-packets:
			got = append(got, p.Type)
		case <-ctx.Done():
			t.Fatal("packets not received")
		}
	}
	assert.Equal(t, []protocol.FCType{protocol.FCTypeDetails, protocol.FCTypeSessionState}, got)

	m, ok := c.Registry().Get(3111899)
	require.True(t, ok)
	assert.Equal(t, "AspenRae", m.Name())
	rc, ok := m.BestSession().Int("rc")
	require.True(t, ok)
	assert.Equal(t, 42, rc)
}

func TestClient_ReconnectAfterLoss(t *testing.T) {
	srv, c := start(t, transport.TCP, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), nil)
	ctx := testContext(t)

	type observed struct {
		event client.Event
		state client.State
	}
	disconnects := make(chan observed, 4)
	c.OnEvent(func(e client.Event) {
		if e.Type == client.EventDisconnected {
			disconnects <- observed{event: e, state: c.State()}
		}
	})

	sess := loggedIn(t, srv, c)
	require.NoError(t, sess.Send(protocol.NewPacket(protocol.FCTypeSessionState, 0, testSessionID, 0, 0, 0, map[string]any{
		"sid": 501, "uid": 3111899, "lv": 4, "vs": 0,
	})))
	require.Eventually(t, func() bool {
		m, ok := c.Registry().Get(3111899)
		return ok && m.BestSession().VideoState() == protocol.StateFreeChat
	}, 2*time.Second, 10*time.Millisecond)

	sess.Close()

	var got observed
	select {
	case got = <-disconnects:
	case <-ctx.Done():
		t.Fatal("no disconnect event")
	}
	assert.Equal(t, client.StatePending, got.state)
	assert.True(t, got.event.WasLoggedIn)
	assert.Equal(t, 50*time.Millisecond, got.event.ReconnectIn)
	assert.NotEmpty(t, got.event.Reason)

	// The last logged in connection went away, so every model is offline.
	require.Eventually(t, func() bool {
		m, ok := c.Registry().Get(3111899)
		return ok && m.BestSession().VideoState() == protocol.StateOffline
	}, time.Second, 5*time.Millisecond)

	_, err := srv.WaitSession(ctx)
	require.NoError(t, err, "client should reconnect")
	require.Eventually(t, func() bool {
		return c.State() == client.StateActive && c.SessionID() == testSessionID
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, c.Registry().LoggedIn())
}

func TestClient_BackoffGrowsUntilMax(t *testing.T) {
	srv, c := start(t, transport.TCP, nil, nil)
	ctx := testContext(t)

	go func() {
		for {
			sess, err := srv.WaitSession(ctx)
			if err != nil {
				return
			}
			sess.Close()
		}
	}()

	delays := make(chan time.Duration, 16)
	c.OnEvent(func(e client.Event) {
		if e.Type == client.EventDisconnected {
			delays <- e.ReconnectIn
		}
	})
	require.NoError(t, c.Connect(ctx, false))

	want := []time.Duration{
		50 * time.Millisecond,
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		400 * time.Millisecond,
	}
	var got []time.Duration
	for range want {
		select {
		case d := <-delays:
			got = append(got, d)
		case <-ctx.Done():
			t.Fatalf("only %d disconnects: %v", len(got), got)
		}
	}
	assert.Equal(t, want, got)
}

func TestClient_BackoffResetsOnLogin(t *testing.T) {
	respond := fakeserver.LoginResponder(testSessionID, testUID, testGuestName)
	srv, c := start(t, transport.TCP, func(s *fakeserver.Session, cmd protocol.Command) {
		if s.ID >= 3 {
			respond(s, cmd)
		}
	}, nil)
	ctx := testContext(t)

	logins := make(chan struct{}, 4)
	delays := make(chan time.Duration, 16)
	c.OnEvent(func(e client.Event) {
		switch e.Type {
		case client.EventLoggedIn:
			logins <- struct{}{}
		case client.EventDisconnected:
			delays <- e.ReconnectIn
		}
	})

	go func() {
		for i := 1; ; i++ {
			sess, err := srv.WaitSession(ctx)
			if err != nil {
				return
			}
			if i >= 3 {
				select {
				case <-logins:
				case <-ctx.Done():
					return
				}
			}
			sess.Close()
			if i >= 3 {
				return
			}
		}
	}()
	require.NoError(t, c.Connect(ctx, true))

	want := []time.Duration{50 * time.Millisecond, 100 * time.Millisecond, 50 * time.Millisecond}
	var got []time.Duration
	for range want {
		select {
		case d := <-delays:
			got = append(got, d)
		case <-ctx.Done():
			t.Fatalf("only %d disconnects: %v", len(got), got)
		}
	}
	assert.Equal(t, want, got)
}

// hangingEndpoint accepts TCP connections and never answers, which keeps
// a websocket handshake pending.
func hangingEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go func() {
		var conns []net.Conn
		defer func() {
			for _, conn := range conns {
				conn.Close()
			}
		}()
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()
	return "ws://" + ln.Addr().String() + "/fcsl"
}

func TestClient_DisconnectWhilePending(t *testing.T) {
	opts := testOptions(transport.WebSocket, hangingEndpoint(t))
	opts.ConnectionTimeout = 0
	c := client.New(opts)
	ctx := testContext(t)

	errc := make(chan error, 1)
	go func() { errc <- c.Connect(ctx, false) }()
	require.Eventually(t, func() bool { return c.State() == client.StatePending }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, c.TxCmd(protocol.FCTypeNull, 0, 0, 0, ""), client.ErrConnecting)
	require.NoError(t, c.Disconnect(ctx))

	select {
	case err := <-errc:
		require.ErrorIs(t, err, client.ErrManualDisconnect)
	case <-ctx.Done():
		t.Fatal("Connect did not return")
	}
	assert.Equal(t, client.StateIdle, c.State())

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, client.StateIdle, c.State(), "no reconnect after a manual disconnect")
}

func TestClient_EnsureConnected(t *testing.T) {
	t.Run("active", func(t *testing.T) {
		srv, c := start(t, transport.TCP, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), nil)
		loggedIn(t, srv, c)
		require.NoError(t, c.EnsureConnected(testContext(t), client.NoWait))
	})

	t.Run("pending", func(t *testing.T) {
		opts := testOptions(transport.WebSocket, hangingEndpoint(t))
		opts.ConnectionTimeout = 0
		c := client.New(opts)
		ctx := testContext(t)

		go func() { _ = c.Connect(ctx, false) }()
		require.Eventually(t, func() bool { return c.State() == client.StatePending }, time.Second, 5*time.Millisecond)

		require.ErrorIs(t, c.EnsureConnected(ctx, client.NoWait), client.ErrNotConnected)
		require.ErrorIs(t, c.EnsureConnected(ctx, 100*time.Millisecond), client.ErrTimeout)

		errc := make(chan error, 1)
		go func() { errc <- c.EnsureConnected(ctx, 0) }()
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, c.Disconnect(ctx))
		select {
		case err := <-errc:
			require.ErrorIs(t, err, client.ErrManualDisconnect)
		case <-ctx.Done():
			t.Fatal("EnsureConnected did not return")
		}
	})
}

func TestClient_ConnectTimeout(t *testing.T) {
	opts := testOptions(transport.WebSocket, hangingEndpoint(t))
	opts.ConnectionTimeout = 100 * time.Millisecond
	c := client.New(opts)
	t.Cleanup(func() { _ = c.Disconnect(context.Background()) })

	err := c.Connect(testContext(t), false)
	require.ErrorIs(t, err, client.ErrTimeout)
	assert.Equal(t, client.StatePending, c.State())
}

func TestClient_Misuse(t *testing.T) {
	c := client.New(testOptions(transport.TCP, "127.0.0.1:1"))
	ctx := testContext(t)

	assert.Equal(t, client.StateIdle, c.State())
	require.ErrorIs(t, c.TxCmd(protocol.FCTypeNull, 0, 0, 0, ""), client.ErrNotConnected)
	require.ErrorIs(t, c.EnsureConnected(ctx, client.NoWait), client.ErrNotConnected)
	require.ErrorIs(t, c.EnsureConnected(ctx, time.Second), client.ErrNotConnected)
	require.ErrorIs(t, c.SendChat(ctx, 3111899, "hi"), client.ErrNotConnected)
	_, err := c.JoinRoom(ctx, 3111899)
	require.ErrorIs(t, err, client.ErrNotConnected)
	require.NoError(t, c.LeaveRoom(3111899))
	require.NoError(t, c.Disconnect(ctx))
	assert.Zero(t, c.Uptime())
}

func TestClient_LoginWhileIdle(t *testing.T) {
	c := client.New(testOptions(transport.TCP, "127.0.0.1:1"))
	ctx := testContext(t)

	require.ErrorIs(t, c.Login(ctx, "alice", "secret"), client.ErrNotConnected)
	assert.Zero(t, c.Registry().LoggedIn())
	assert.Equal(t, client.StateIdle, c.State())

	require.ErrorIs(t, c.Login(ctx, "", ""), client.ErrNotConnected)
	assert.Zero(t, c.Registry().LoggedIn(), "repeated failures must not count")
}

func TestClient_FramingErrorReconnects(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv, c := start(t, transport.TCP, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), func(o *client.Options) {
		o.Metrics = client.NewMetrics(reg)
	})
	ctx := testContext(t)

	disconnects := make(chan client.Event, 4)
	c.OnEvent(func(e client.Event) {
		if e.Type == client.EventDisconnected {
			disconnects <- e
		}
	})

	sess := loggedIn(t, srv, c)
	require.NoError(t, sess.SendRaw(make([]byte, 40)))

	select {
	case e := <-disconnects:
		assert.Contains(t, e.Reason, "framing error")
		assert.True(t, e.WasLoggedIn)
		assert.Equal(t, 50*time.Millisecond, e.ReconnectIn)
	case <-ctx.Done():
		t.Fatal("no disconnect event")
	}

	_, err := srv.WaitSession(ctx)
	require.NoError(t, err, "client should reconnect")
	require.Eventually(t, func() bool {
		return c.State() == client.StateActive && c.SessionID() == testSessionID
	}, 2*time.Second, 10*time.Millisecond)

	expected := `
# HELP fcchat_framing_errors_total Total number of connections dropped for bad framing
# TYPE fcchat_framing_errors_total counter
fcchat_framing_errors_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "fcchat_framing_errors_total"))
}

func TestClient_ManualDisconnect(t *testing.T) {
	srv, c := start(t, transport.TCP, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), nil)
	events := recordEvents(c)
	loggedIn(t, srv, c)

	require.NoError(t, c.Disconnect(testContext(t)))
	assert.Equal(t, client.StateIdle, c.State())
	assert.Zero(t, c.SessionID())
	assert.Equal(t, "guest", c.Username())
	assert.Zero(t, c.Registry().LoggedIn())

	waitEvent(t, events, client.EventManualDisconnect)
	e := waitEvent(t, events, client.EventDisconnected)
	assert.Zero(t, e.ReconnectIn)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, client.StateIdle, c.State())
	assert.Equal(t, 1, srv.Accepted())
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := client.NewMetrics(reg)
	srv, c := start(t, transport.TCP, fakeserver.LoginResponder(testSessionID, testUID, testGuestName), func(o *client.Options) {
		o.Metrics = metrics
	})
	loggedIn(t, srv, c)
	require.NoError(t, c.Disconnect(testContext(t)))

	expected := `
# HELP fcchat_active_connections Number of active chat server connections
# TYPE fcchat_active_connections gauge
fcchat_active_connections 0
# HELP fcchat_connects_total Total number of established chat server connections
# TYPE fcchat_connects_total counter
fcchat_connects_total 1
# HELP fcchat_disconnects_total Total number of lost or closed chat server connections
# TYPE fcchat_disconnects_total counter
fcchat_disconnects_total{kind="manual"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"fcchat_active_connections", "fcchat_connects_total", "fcchat_disconnects_total"))

	n, err := testutil.GatherAndCount(reg, "fcchat_packets_received_total")
	require.NoError(t, err)
	assert.Positive(t, n)
	n, err = testutil.GatherAndCount(reg, "fcchat_request_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}
