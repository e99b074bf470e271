package tcp_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/internal/transport/tcp"
	"github.com/omochice/fcchat/pkg/protocol"
)

// echo writes back every chunk it reads.
func echo(conn transport.Conn) {
	for {
		data, err := conn.Read(context.Background())
		if err != nil {
			return
		}
		if err := conn.Write(context.Background(), data); err != nil {
			return
		}
	}
}

func startServer(t *testing.T, h tcp.Handler) *tcp.Server {
	t.Helper()
	srv := tcp.New("127.0.0.1:0", h, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Serve()
	return srv
}

func TestServer_EchoesFrames(t *testing.T) {
	srv := startServer(t, echo)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := tcp.Dial(ctx, srv.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	tests := []struct {
		name   string
		packet *protocol.Packet
	}{
		{name: "no payload", packet: protocol.NewPacket(protocol.FCTypeNull, 1, 2, 3, 4, 0, nil)},
		{name: "json payload", packet: protocol.NewPacket(protocol.FCTypeSessionState, 0, 77, 0, 0, 0, map[string]any{"uid": 3111899, "vs": 0})},
		{name: "text payload", packet: protocol.NewPacket(protocol.FCTypeLogin, 0, 77, 0, 12345, 0, "Guest12345")},
	}
	dec := protocol.NewBinaryDecoder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := protocol.EncodeBinaryFrame(tt.packet)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if err := conn.Write(ctx, frame); err != nil {
				t.Fatalf("Write() error = %v", err)
			}

			var got []*protocol.Packet
			for len(got) == 0 {
				chunk, err := conn.Read(ctx)
				if err != nil {
					t.Fatalf("Read() error = %v", err)
				}
				if got, err = dec.Feed(chunk); err != nil {
					t.Fatalf("decode: %v", err)
				}
			}
			p := got[0]
			if p.Type != tt.packet.Type || p.From != tt.packet.From || p.To != tt.packet.To ||
				p.Arg1 != tt.packet.Arg1 || p.Arg2 != tt.packet.Arg2 {
				t.Errorf("echoed %s, want %s", p, tt.packet)
			}
		})
	}
}

func TestServer_Addr(t *testing.T) {
	srv := tcp.New("127.0.0.1:0", echo, nil)
	if srv.Addr() != "" {
		t.Errorf("Addr() before Listen = %q, want empty", srv.Addr())
	}
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go srv.Serve()
	addr := srv.Addr()
	srv.Stop()

	if _, err := net.Dial("tcp", addr); err == nil {
		t.Error("Dial() after Stop succeeded")
	}
}

func TestServer_StopClosesConnections(t *testing.T) {
	srv := startServer(t, echo)

	conn, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	srv.Stop()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Error("expected error after stop, got nil")
	}
}
