package tcp_test

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/internal/transport/tcp"
	"github.com/omochice/fcchat/pkg/protocol"
)

var _ transport.Conn = (*tcp.Conn)(nil)

func TestConn_ReadChunks(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "small", size: 12},
		{name: "larger than one chunk", size: 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()
			conn := tcp.NewConn(client)

			want := make([]byte, tt.size)
			for i := range want {
				want[i] = byte(i)
			}
			go func() {
				server.Write(want)
				server.Close()
			}()

			var got []byte
			for {
				chunk, err := conn.Read(context.Background())
				if err != nil {
					break
				}
				got = append(got, chunk...)
			}
			if len(got) != tt.size {
				t.Fatalf("read %d bytes, want %d", len(got), tt.size)
			}
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("byte %d = %d, want %d", i, got[i], want[i])
				}
			}
		})
	}
}

func TestConn_ReadHonorsContext(t *testing.T) {
	tests := []struct {
		name    string
		ctx     func() (context.Context, context.CancelFunc)
		wantErr error
	}{
		{
			name: "deadline",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 30*time.Millisecond)
			},
			wantErr: context.DeadlineExceeded,
		},
		{
			name: "cancel",
			ctx: func() (context.Context, context.CancelFunc) {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(30*time.Millisecond, cancel)
				return ctx, cancel
			},
			wantErr: context.Canceled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, client := net.Pipe()
			defer server.Close()
			defer client.Close()
			conn := tcp.NewConn(client)

			ctx, cancel := tt.ctx()
			defer cancel()
			if _, err := conn.Read(ctx); !errors.Is(err, tt.wantErr) {
				t.Errorf("Read() error = %v, want %v", err, tt.wantErr)
			}

			// The connection stays usable after a cancelled read.
			go server.Write([]byte("later"))
			data, err := conn.Read(context.Background())
			if err != nil || string(data) != "later" {
				t.Errorf("Read() after cancel = %q, %v", data, err)
			}
		})
	}
}

func TestConn_ConcurrentFramesStayIntact(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	conn := tcp.NewConn(client)

	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			frame, err := protocol.EncodeBinaryFrame(protocol.NewPacket(protocol.FCTypeCMesg, i, 0, 0, 0, 0, "hello from a writer"))
			if err != nil {
				t.Errorf("encode: %v", err)
				return
			}
			if err := conn.Write(context.Background(), frame); err != nil {
				t.Errorf("Write() error = %v", err)
			}
		}()
	}
	go func() {
		wg.Wait()
		client.Close()
	}()

	dec := protocol.NewBinaryDecoder()
	seen := make(map[int]bool)
	buf := make([]byte, 37)
	for {
		n, err := server.Read(buf)
		if err != nil {
			break
		}
		packets, err := dec.Feed(buf[:n])
		if err != nil {
			t.Fatalf("interleaved frames: %v", err)
		}
		for _, p := range packets {
			seen[p.From] = true
		}
	}
	if len(seen) != writers {
		t.Errorf("decoded frames from %d writers, want %d", len(seen), writers)
	}
}

func TestConn_WriteDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()
	conn := tcp.NewConn(client)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := conn.Write(ctx, []byte("stuck")); err == nil {
		t.Error("Write() error = nil, want a deadline error")
	}
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	conn, err := tcp.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	peer := <-accepted
	if conn.RemoteAddr() != addr {
		t.Errorf("RemoteAddr() = %q, want %q", conn.RemoteAddr(), addr)
	}
	conn.Close()
	peer.Close()
	ln.Close()

	if _, err := tcp.Dial(context.Background(), addr); err == nil {
		t.Error("Dial() error = nil, want connection refused")
	}
}
