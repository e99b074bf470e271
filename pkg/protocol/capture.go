package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
)

// CaptureWriter records packets as a stream of length-delimited protobuf
// messages. It is safe for concurrent use.
type CaptureWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewCaptureWriter creates a CaptureWriter appending to w.
func NewCaptureWriter(w io.Writer) *CaptureWriter {
	return &CaptureWriter{w: w}
}

// Write appends one packet to the capture.
func (cw *CaptureWriter) Write(p *Packet) error {
	msg, err := toProto(p)
	if err != nil {
		return err
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if _, err := protodelim.MarshalTo(cw.w, msg); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

// CaptureReader reads packets recorded by a CaptureWriter.
type CaptureReader struct {
	r *bufio.Reader
}

// NewCaptureReader creates a CaptureReader over r.
func NewCaptureReader(r io.Reader) *CaptureReader {
	return &CaptureReader{r: bufio.NewReader(r)}
}

// Next returns the next recorded packet, or io.EOF at the end of the
// capture.
func (cr *CaptureReader) Next() (*Packet, error) {
	msg := &structpb.Struct{}
	if err := protodelim.UnmarshalFrom(cr.r, msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read packet: %w", err)
	}
	return fromProto(msg)
}

// toProto converts a packet to its capture record.
func toProto(p *Packet) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(map[string]any{
		"type":    int64(p.Type),
		"from":    int64(p.From),
		"to":      int64(p.To),
		"arg1":    int64(p.Arg1),
		"arg2":    int64(p.Arg2),
		"len":     int64(p.PayloadLen),
		"payload": p.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet %s: %w", p.Type, err)
	}
	return s, nil
}

// fromProto converts a capture record back to a packet. Protobuf keeps
// every number as a double, so integral values are turned back into int64.
func fromProto(s *structpb.Struct) (*Packet, error) {
	m := s.AsMap()
	var nums [6]int
	for i, key := range []string{"type", "from", "to", "arg1", "arg2", "len"} {
		n, ok := AsInt(m[key])
		if !ok {
			return nil, fmt.Errorf("capture record missing %q", key)
		}
		nums[i] = n
	}
	return NewPacket(FCType(nums[0]), nums[1], nums[2], nums[3], nums[4], nums[5], restoreInts(m["payload"])), nil
}

func restoreInts(v any) any {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t)
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = restoreInts(val)
		}
		return t
	case []any:
		for i := range t {
			t[i] = restoreInts(t[i])
		}
		return t
	default:
		return v
	}
}
