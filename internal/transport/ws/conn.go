// Package ws carries text chat frames over websockets.
package ws

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn is the client side of a websocket chat connection.
type Conn struct {
	conn net.Conn
	r    io.Reader
	// wmu is held for every whole frame written, control replies included.
	wmu     sync.Mutex
	control wsutil.FrameHandlerFunc
}

// NewConn wraps an upgraded client connection. br holds bytes buffered
// during the handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	c := &Conn{conn: conn, r: conn}
	if br != nil {
		c.r = br
	}
	c.control = wsutil.ControlFrameHandler(conn, ws.StateClientSide)
	return c
}

// Dial performs the websocket handshake with url, sending origin as the
// Origin header, and then the chat hello message.
func Dial(ctx context.Context, url, origin string, hello string) (*Conn, error) {
	dialer := ws.Dialer{}
	if origin != "" {
		dialer.Header = ws.HandshakeHeaderHTTP(http.Header{"Origin": []string{origin}})
	}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	c := NewConn(conn, br)
	if hello != "" {
		if err := c.Write(ctx, []byte(hello)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to send hello: %w", err)
		}
	}
	return c, nil
}

// Read returns the next data message, answering control frames on the
// way. It gives up when ctx is done.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ctx.Done() != nil {
		fired := make(chan struct{})
		stop := context.AfterFunc(ctx, func() {
			c.conn.SetReadDeadline(time.Now())
			close(fired)
		})
		defer func() {
			if !stop() {
				<-fired
			}
			c.conn.SetReadDeadline(time.Time{})
		}()
	}

	data, err := c.readData()
	if err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return data, err
}

func (c *Conn) readData() ([]byte, error) {
	rd := &wsutil.Reader{
		Source:         c.r,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(rd)
	}
}

// handleControl answers pings and closes under the write lock so that
// replies never split a data frame.
func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.control(hdr, r)
}

// Write sends data as one text message, honoring the ctx deadline.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientText(c.conn, data)
}

// Close implements transport.Conn. The close frame is skipped when a write
// is in flight; closing the socket unblocks that writer.
func (c *Conn) Close() error {
	if c.wmu.TryLock() {
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.wmu.Unlock()
	}
	return c.conn.Close()
}

// RemoteAddr implements transport.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
