package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/protocol"
)

// TxCmd sends one command to the server. It fails with ErrNotConnected
// when the client is idle and with ErrConnecting while a connection is
// being established, except for LOGIN.
func (c *Client) TxCmd(t protocol.FCType, to, arg1, arg2 int, payload string) error {
	c.mu.Lock()
	state, conn, sid := c.state, c.conn, c.sessionID
	c.mu.Unlock()

	switch {
	case state == StateIdle:
		return ErrNotConnected
	case state == StatePending && t != protocol.FCTypeLogin:
		return ErrConnecting
	case conn == nil:
		return ErrConnecting
	}

	cmd := protocol.Command{Type: t, From: sid, To: to, Arg1: arg1, Arg2: arg2, Payload: payload}
	var (
		data []byte
		err  error
	)
	if c.opts.Transport == transport.WebSocket {
		data, err = cmd.MarshalText()
	} else {
		data, err = cmd.MarshalBinary()
	}
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.LogAttrs(ctx, slog.LevelDebug, "sending command",
			slog.String("fctype", t.String()),
			slog.Int("to", to),
			slog.Int("arg1", arg1),
			slog.Int("arg2", arg2),
		)
	}
	if err := conn.Write(ctx, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", t, err)
	}
	c.metrics.command(t)
	return nil
}

// TxPacket sends p with its payload encoded as JSON.
func (c *Client) TxPacket(p *protocol.Packet) error {
	var payload string
	if p.Payload != nil {
		b, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = string(b)
	}
	return c.TxCmd(p.Type, p.To, p.Arg1, p.Arg2, payload)
}

// Login logs in on the current connection. Empty arguments keep the
// configured credentials. The connection counts as logged in from here
// on, even when the server refuses the login.
func (c *Client) Login(ctx context.Context, username, password string) (err error) {
	ctx, span := c.startSpan(ctx, "login", attribute.Bool("modern", c.opts.ModernLogin))
	start := time.Now()
	defer func() {
		endSpan(span, err)
		c.metrics.request("login", start, err)
	}()

	c.mu.Lock()
	attachedHere := !c.attached
	if attachedHere {
		c.attached = true
		c.registry.Attach()
	}
	c.choseToLogIn = true
	if username != "" {
		c.username = username
	}
	if password != "" {
		c.password = password
	}
	user, pass := c.username, c.password
	c.mu.Unlock()

	version := protocol.LoginVersionFlash
	if c.opts.Transport == transport.WebSocket {
		version = protocol.LoginVersionWebSocket
	}
	credentials := fmt.Sprintf("%d/%s:%s", int(c.opts.Platform), user, pass)

	login := c.pending.add("login", func(p *protocol.Packet) (bool, error) {
		return p.Type == protocol.FCTypeLogin, nil
	}, true)

	if !c.opts.ModernLogin {
		err = c.TxCmd(protocol.FCTypeLogin, 0, version, 0, credentials)
	} else {
		err = c.challengeLogin(ctx, version, credentials)
	}
	if err != nil {
		c.pending.remove(login)
		if attachedHere {
			c.undoAttach()
		}
		return err
	}

	p, err := c.pending.wait(ctx, login, c.opts.LoginTimeout)
	if err != nil {
		return err
	}
	if p.Arg1 != protocol.ResponseSuccess {
		c.logger.Error("login failed", "username", user, "code", p.Arg1)
		return fmt.Errorf("%w for user %q", ErrLoginFailed, user)
	}
	if _, ok := p.PayloadString(); !ok {
		return fmt.Errorf("%w: unexpected LOGIN response %s", ErrLoginFailed, p)
	}

	if err := c.TxCmd(protocol.FCTypeRoomData, 0, protocol.ChanJoin, 0, ""); err != nil {
		c.logger.Debug("could not start room data updates", "error", err)
	}
	return nil
}

// undoAttach reverts the logged in count of a login that was never sent.
func (c *Client) undoAttach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attached {
		c.attached = false
		c.registry.Detach()
	}
}

// challengeLogin answers the login challenge and sends the credentials
// prefixed with the token the server returns for it.
func (c *Client) challengeLogin(ctx context.Context, version int, credentials string) error {
	if c.opts.Challenger == nil {
		return ErrNoChallenger
	}
	answer, err := c.opts.Challenger.Challenge(ctx, c.opts.Platform)
	if err != nil {
		return fmt.Errorf("login challenge: %w", err)
	}

	p, err := c.roundTrip(ctx, "login_challenge", c.opts.LoginTimeout, func(p *protocol.Packet) (bool, error) {
		return p.Type == protocol.FCTypeExtData && p.Arg1 == int(protocol.FCTypeLogin), nil
	}, func() error {
		return c.TxCmd(protocol.FCTypeLogin, 0, int(protocol.FCTypeExtData), 0, protocol.EncodeURIComponent(answer))
	})
	if err != nil {
		return err
	}

	token, ok := p.PayloadString()
	if !ok {
		token = fmt.Sprint(p.Payload)
	}
	return c.TxCmd(protocol.FCTypeLogin, 0, version, 0, token+"@"+credentials)
}
