package protocol_test

import (
	"strings"
	"testing"

	"github.com/omochice/fcchat/pkg/protocol"
)

func TestPacket_AboutID(t *testing.T) {
	tests := []struct {
		name   string
		packet *protocol.Packet
		wantID int
		wantOK bool
	}{
		{
			name:   "session state uses arg2",
			packet: protocol.NewPacket(protocol.FCTypeSessionState, 0, 0, 0, 3111899, 0, nil),
			wantID: 3111899,
			wantOK: true,
		},
		{
			name:   "join chan uses arg1 reduced to a user id",
			packet: protocol.NewPacket(protocol.FCTypeJoinChan, 0, 0, 103111899, 0, 0, nil),
			wantID: 3111899,
			wantOK: true,
		},
		{
			name:   "chat message uses the room",
			packet: protocol.NewPacket(protocol.FCTypeCMesg, 55, 103111899, 0, 0, 0, nil),
			wantID: 3111899,
			wantOK: true,
		},
		{
			name:   "private message uses the sender",
			packet: protocol.NewPacket(protocol.FCTypePMesg, 4242, 1, 0, 0, 0, nil),
			wantID: 4242,
			wantOK: true,
		},
		{
			name:   "room data reads the model field",
			packet: protocol.NewPacket(protocol.FCTypeRoomData, 0, 0, 0, 0, 0, map[string]any{"model": int64(777)}),
			wantID: 777,
			wantOK: true,
		},
		{
			name:   "room data without a model",
			packet: protocol.NewPacket(protocol.FCTypeRoomData, 0, 0, 0, 0, 0, map[string]any{"countdown": true}),
			wantOK: false,
		},
		{
			name:   "details are about nobody",
			packet: protocol.NewPacket(protocol.FCTypeDetails, 0, 0, 5, 5, 0, nil),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := tt.packet.AboutID()
			if ok != tt.wantOK {
				t.Fatalf("AboutID() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && id != tt.wantID {
				t.Errorf("AboutID() = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestPacket_Text(t *testing.T) {
	tests := []struct {
		name   string
		packet *protocol.Packet
		want   string
		wantOK bool
	}{
		{
			name: "emote replaced by its code",
			packet: protocol.NewPacket(protocol.FCTypeCMesg, 0, 0, 0, 0, 0, map[string]any{
				"msg": "hi #~ue,2c9d2da6.gif,mhappy~# there",
			}),
			want:   "hi :mhappy there",
			wantOK: true,
		},
		{
			name: "percent encoded message",
			packet: protocol.NewPacket(protocol.FCTypePMesg, 0, 0, 0, 0, 0, map[string]any{
				"msg": "hello%20world",
			}),
			want:   "hello world",
			wantOK: true,
		},
		{
			name:   "no msg field",
			packet: protocol.NewPacket(protocol.FCTypeCMesg, 0, 0, 0, 0, 0, map[string]any{"nm": "x"}),
			wantOK: false,
		},
		{
			name:   "not a chat packet",
			packet: protocol.NewPacket(protocol.FCTypeDetails, 0, 0, 0, 0, 0, map[string]any{"msg": "x"}),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.packet.Text()
			if ok != tt.wantOK {
				t.Fatalf("Text() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEmotes_Limit(t *testing.T) {
	msg := strings.Repeat("#~e,abc.png,wave~# ", 12)

	got := protocol.ParseEmotes(msg)

	if n := strings.Count(got, ":wave"); n != 10 {
		t.Errorf("replaced %d emotes, want 10", n)
	}
	if n := strings.Count(got, "#~e,abc.png,wave~#"); n != 2 {
		t.Errorf("left %d emotes untouched, want 2", n)
	}
}

func TestPacket_ChatString(t *testing.T) {
	tests := []struct {
		name   string
		packet *protocol.Packet
		want   string
		wantOK bool
	}{
		{
			name: "chat message",
			packet: protocol.NewPacket(protocol.FCTypeCMesg, 0, 0, 0, 0, 0, map[string]any{
				"nm": "viewer", "msg": "hi",
			}),
			want:   "viewer: hi",
			wantOK: true,
		},
		{
			name: "tip with a message",
			packet: protocol.NewPacket(protocol.FCTypeTokenInc, 0, 0, 0, 0, 0, map[string]any{
				"tokens": int64(25),
				"u":      []any{int64(1), int64(2), "fan"},
				"m":      []any{int64(3), int64(4), "AspenRae"},
				"msg":    "nice",
			}),
			want:   "fan has tipped AspenRae 25 tokens: 'nice'",
			wantOK: true,
		},
		{
			name: "tip without a message",
			packet: protocol.NewPacket(protocol.FCTypeTokenInc, 0, 0, 0, 0, 0, map[string]any{
				"tokens": int64(1),
				"u":      []any{int64(1), int64(2), "fan"},
				"m":      []any{int64(3), int64(4), "AspenRae"},
			}),
			want:   "fan has tipped AspenRae 1 tokens.",
			wantOK: true,
		},
		{
			name: "tip with a malformed tipper",
			packet: protocol.NewPacket(protocol.FCTypeTokenInc, 0, 0, 0, 0, 0, map[string]any{
				"tokens": int64(1),
				"u":      []any{int64(1)},
				"m":      []any{int64(3), int64(4), "AspenRae"},
			}),
			wantOK: false,
		},
		{
			name:   "raw text payload",
			packet: protocol.NewPacket(protocol.FCTypeCMesg, 0, 0, 0, 0, 0, "hi"),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.packet.ChatString()
			if ok != tt.wantOK {
				t.Fatalf("ChatString() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ChatString() = %q, want %q", got, tt.want)
			}
		})
	}
}
