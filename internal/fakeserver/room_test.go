package fakeserver_test

import (
	"context"
	"testing"
	"time"

	"github.com/omochice/fcchat/internal/fakeserver"
	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/internal/transport/tcp"
	"github.com/omochice/fcchat/pkg/protocol"
)

const testRoom = protocol.FreeChatStart + 42

type member struct {
	conn transport.Conn
	dec  protocol.Decoder
	buf  []*protocol.Packet
}

func joinMember(t *testing.T, ctx context.Context, srv *fakeserver.Server, user string) *member {
	t.Helper()
	conn, err := tcp.Dial(ctx, srv.Endpoint())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	m := &member{conn: conn, dec: protocol.NewBinaryDecoder()}
	m.send(t, ctx, protocol.Command{Type: protocol.FCTypeLogin, Arg1: protocol.LoginVersionFlash, Payload: "1/" + user + ":pw"})
	m.send(t, ctx, protocol.Command{Type: protocol.FCTypeJoinChan, Arg1: testRoom, Arg2: protocol.ChanJoin | protocol.ChanHistory})
	return m
}

func (m *member) send(t *testing.T, ctx context.Context, cmd protocol.Command) {
	t.Helper()
	data, err := cmd.MarshalBinary()
	if err != nil {
		t.Fatalf("Failed to encode: %v", err)
	}
	if err := m.conn.Write(ctx, data); err != nil {
		t.Fatalf("Failed to write: %v", err)
	}
}

// next returns the next packet of type typ, skipping others.
func (m *member) next(t *testing.T, ctx context.Context, typ protocol.FCType) *protocol.Packet {
	t.Helper()
	for {
		for len(m.buf) > 0 {
			p := m.buf[0]
			m.buf = m.buf[1:]
			if p.Type == typ {
				return p
			}
		}
		chunk, err := m.conn.Read(ctx)
		if err != nil {
			t.Fatalf("Failed to read waiting for %s: %v", typ, err)
		}
		packets, err := m.dec.Feed(chunk)
		if err != nil {
			t.Fatalf("Failed to decode: %v", err)
		}
		m.buf = append(m.buf, packets...)
	}
}

func waitMembers(t *testing.T, ctx context.Context, room *fakeserver.ChatRoom, want int) {
	t.Helper()
	for room.Members(testRoom) != want {
		select {
		case <-ctx.Done():
			t.Fatalf("Expected %d members, got %d", want, room.Members(testRoom))
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestChatRoom_Relay(t *testing.T) {
	room := fakeserver.NewChatRoom()
	srv, err := fakeserver.Start(transport.TCP, room.Handle, discard())
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	alice := joinMember(t, ctx, srv, "alice")
	if p := alice.next(t, ctx, protocol.FCTypeJoinChan); p.Arg1 != testRoom || p.Arg2 != protocol.ChanJoin {
		t.Errorf("Unexpected join ack: %s", p)
	}
	bob := joinMember(t, ctx, srv, "guest")
	waitMembers(t, ctx, room, 2)

	joined := alice.next(t, ctx, protocol.FCTypeJoinChan)
	if m, _ := joined.PayloadMap(); m["nm"] != "Guest2" {
		t.Errorf("Expected guest name Guest2, got %v", m["nm"])
	}

	alice.send(t, ctx, protocol.Command{Type: protocol.FCTypeCMesg, To: testRoom, Payload: "hello"})

	tests := []struct {
		name string
		m    *member
	}{
		{name: "sender", m: alice},
		{name: "other member", m: bob},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.m.next(t, ctx, protocol.FCTypeCMesg)
			got, ok := p.ChatString()
			if !ok || got != "alice: hello" {
				t.Errorf("Expected %q, got %q", "alice: hello", got)
			}
			if p.To != testRoom {
				t.Errorf("Expected room %d, got %d", testRoom, p.To)
			}
		})
	}

	bob.send(t, ctx, protocol.Command{Type: protocol.FCTypeJoinChan, Arg1: testRoom, Arg2: protocol.ChanPart})
	waitMembers(t, ctx, room, 1)
	if p := alice.next(t, ctx, protocol.FCTypeJoinChan); p.Arg2 != protocol.ChanPart {
		t.Errorf("Expected part notice, got %s", p)
	}
}

func TestChatRoom_IgnoresNonMembers(t *testing.T) {
	room := fakeserver.NewChatRoom()
	srv, err := fakeserver.Start(transport.TCP, room.Handle, discard())
	if err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, err := tcp.Dial(ctx, srv.Endpoint())
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	outsider := &member{conn: conn, dec: protocol.NewBinaryDecoder()}
	outsider.send(t, ctx, protocol.Command{Type: protocol.FCTypeCMesg, To: testRoom, Payload: "spam"})
	outsider.send(t, ctx, protocol.Command{Type: protocol.FCTypeJoinChan, Arg1: testRoom, Arg2: protocol.ChanPart})

	if _, err := srv.WaitCommand(ctx, protocol.FCTypeJoinChan); err != nil {
		t.Fatal(err)
	}
	if n := room.Members(testRoom); n != 0 {
		t.Errorf("Expected empty room, got %d members", n)
	}
}
