package protocol

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestCapture_RoundTrip(t *testing.T) {
	packets := []*Packet{
		NewPacket(FCTypeSessionState, 0, 42, 0, 3111899, 31, map[string]any{
			"sid":  int64(501),
			"m":    map[string]any{"rc": int64(12), "topic": "hello"},
			"tags": []any{"a", "b"},
		}),
		NewPacket(FCTypeLogin, 0, 777, 0, 9, 10, "Guest12345"),
		NewPacket(FCTypeNull, 0, 0, 0, 0, 0, nil),
	}

	var buf bytes.Buffer
	w := NewCaptureWriter(&buf)
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	r := NewCaptureReader(&buf)
	for i, want := range packets {
		got, err := r.Next()
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got.Type != want.Type || got.From != want.From || got.To != want.To ||
			got.Arg1 != want.Arg1 || got.Arg2 != want.Arg2 || got.PayloadLen != want.PayloadLen {
			t.Errorf("packet #%d header = %s, want %s", i, got, want)
		}
		if !reflect.DeepEqual(got.Payload, want.Payload) {
			t.Errorf("packet #%d payload = %#v, want %#v", i, got.Payload, want.Payload)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("Next() at end error = %v, want io.EOF", err)
	}
}

func TestFromProto_MissingField(t *testing.T) {
	s, err := toProto(NewPacket(FCTypeNull, 0, 0, 0, 0, 0, nil))
	if err != nil {
		t.Fatalf("toProto() error = %v", err)
	}
	delete(s.Fields, "arg1")

	if _, err := fromProto(s); err == nil {
		t.Error("fromProto() error = nil, want an error for a missing field")
	}
}

func TestRestoreInts(t *testing.T) {
	got := restoreInts(map[string]any{
		"n":    float64(3),
		"f":    1.5,
		"list": []any{float64(1), "x"},
	})
	want := map[string]any{
		"n":    int64(3),
		"f":    1.5,
		"list": []any{int64(1), "x"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("restoreInts() = %#v, want %#v", got, want)
	}
}

func TestDecodeIfNeeded(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"hello%20world", "hello world"},
		{"100%", "100%"},
		{"50% off", "50% off"},
		{"a%2Fb", "a/b"},
		{"a%2fb", "a%2fb"},
	}
	for _, tt := range tests {
		if got := decodeIfNeeded(tt.in); got != tt.want {
			t.Errorf("decodeIfNeeded(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
