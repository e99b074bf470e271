// Package tcp carries binary chat frames over plain TCP sockets.
package tcp

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// readChunk bounds one Read. Frames larger than this arrive over several
// chunks and are reassembled by the decoder.
const readChunk = 8192

// Conn adapts net.Conn to transport.Conn. Writes are serialized so that
// concurrent commands never interleave their frames.
type Conn struct {
	conn net.Conn
	wmu  sync.Mutex
	buf  []byte
}

// NewConn wraps a net.Conn.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, buf: make([]byte, readChunk)}
}

// Dial opens a TCP connection to addr.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	d := net.Dialer{KeepAlive: 30 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	return NewConn(conn), nil
}

// Read returns the bytes currently available, at most readChunk of them.
// It gives up when ctx is done. Only one Read may run at a time.
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

	n, err := c.conn.Read(c.buf)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[:n])
	return out, nil
}

// Write sends data, honoring the ctx deadline.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
