package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	headerLen = 7 * 4

	textTagLen = 6
	// minTextFrame is the shortest possible text frame: a length tag and
	// five single digit integers.
	minTextFrame = textTagLen + 9
	maxTextBody  = 999999
)

var textFrameHead = regexp.MustCompile(`^\d{4}\d+ \d+ \d+ \d+ \d+`)

// FramingError reports a stream that lost frame alignment. The connection
// carrying it cannot be used any further.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return "framing error: " + e.Reason
}

// Decoder turns transport chunks into packets. Partial frames are buffered
// until the rest arrives.
type Decoder interface {
	Feed(data []byte) ([]*Packet, error)
}

// BinaryDecoder decodes the binary frames sent over plain sockets.
type BinaryDecoder struct {
	buf []byte
}

// NewBinaryDecoder creates an empty binary decoder.
func NewBinaryDecoder() *BinaryDecoder {
	return &BinaryDecoder{}
}

// Feed implements Decoder. Packets decoded before a framing error are
// returned together with the error.
func (d *BinaryDecoder) Feed(data []byte) ([]*Packet, error) {
	d.buf = append(d.buf, data...)

	var packets []*Packet
	off := 0
	for len(d.buf)-off >= 4 {
		frame := d.buf[off:]
		magic := int32(binary.BigEndian.Uint32(frame[0:4]))
		if magic != Magic {
			d.buf = nil
			return packets, &FramingError{Reason: fmt.Sprintf("bad magic %d", magic)}
		}
		if len(frame) < headerLen {
			break
		}
		payloadLen := int(int32(binary.BigEndian.Uint32(frame[24:28])))
		if payloadLen < 0 {
			d.buf = nil
			return packets, &FramingError{Reason: fmt.Sprintf("negative payload length %d", payloadLen)}
		}
		if len(frame) < headerLen+payloadLen {
			break
		}

		raw := string(frame[headerLen : headerLen+payloadLen])
		packets = append(packets, NewPacket(
			FCType(readInt(frame, 4)),
			readInt(frame, 8),
			readInt(frame, 12),
			readInt(frame, 16),
			readInt(frame, 20),
			payloadLen,
			decodePayload(raw, false),
		))
		off += headerLen + payloadLen
	}

	d.buf = compact(d.buf, off)
	return packets, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *BinaryDecoder) Buffered() int {
	return len(d.buf)
}

func readInt(b []byte, at int) int {
	return int(int32(binary.BigEndian.Uint32(b[at : at+4])))
}

// TextDecoder decodes the length-tagged text frames sent over websockets.
type TextDecoder struct {
	buf    []byte
	logger *slog.Logger
}

// NewTextDecoder creates an empty text decoder. Noise in the stream is
// reported to logger.
func NewTextDecoder(logger *slog.Logger) *TextDecoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TextDecoder{logger: logger}
}

// Feed implements Decoder. Text streams never fail fatally: noise is
// skipped and an unreadable length tag stalls decoding until more data
// arrives.
func (d *TextDecoder) Feed(data []byte) ([]*Packet, error) {
	d.buf = append(d.buf, data...)

	var packets []*Packet
	off := 0
	for len(d.buf)-off >= minTextFrame {
		for !textFrameHead.Match(d.buf[off:]) && len(d.buf)-off >= minTextFrame {
			d.logger.Warn("discarding noise from text stream", "byte", string(d.buf[off:off+1]))
			off++
		}
		if len(d.buf)-off < minTextFrame {
			break
		}

		length, err := strconv.Atoi(string(d.buf[off : off+textTagLen]))
		if err != nil || length < 0 {
			d.logger.Warn("unreadable text frame length", "head", string(d.buf[off:off+textTagLen]))
			break
		}
		if len(d.buf)-off < textTagLen+length {
			break
		}

		body := string(d.buf[off+textTagLen : off+textTagLen+length])
		off += textTagLen + length

		p, err := parseTextBody(body)
		if err != nil {
			d.logger.Warn("skipping malformed text frame", "error", err)
			continue
		}
		packets = append(packets, p)
	}

	d.buf = compact(d.buf, off)
	return packets, nil
}

// Buffered returns the number of bytes waiting for the rest of a frame.
func (d *TextDecoder) Buffered() int {
	return len(d.buf)
}

func parseTextBody(body string) (*Packet, error) {
	parts := strings.SplitN(body, " ", 6)
	if len(parts) < 5 {
		return nil, fmt.Errorf("expected 5 integers, got %q", body)
	}
	var nums [5]int
	for i := range nums {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = n
	}
	raw := ""
	if len(parts) == 6 {
		raw = parts[5]
	}
	return NewPacket(FCType(nums[0]), nums[1], nums[2], nums[3], nums[4], len(raw), decodePayload(raw, true)), nil
}

func compact(buf []byte, off int) []byte {
	if off == 0 {
		return buf
	}
	if off >= len(buf) {
		return nil
	}
	return append([]byte(nil), buf[off:]...)
}

// decodePayload parses raw as JSON, percent-decoding it first when
// percentEncoded is set. Payloads that are not JSON are kept as text.
func decodePayload(raw string, percentEncoded bool) any {
	if raw == "" {
		return nil
	}
	candidate := raw
	if percentEncoded {
		decoded, err := url.PathUnescape(raw)
		if err != nil {
			return decodeIfNeeded(raw)
		}
		candidate = decoded
	}
	if v, ok := parseJSON(candidate); ok {
		return decodeAny(v)
	}
	return decodeIfNeeded(raw)
}

func parseJSON(s string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	return orderListSchema(Normalize(v), s), true
}

// payloadText renders a packet payload the way it travels on the wire.
func payloadText(payload any) (string, error) {
	switch t := payload.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("failed to encode payload: %w", err)
		}
		return string(b), nil
	}
}

// EncodeBinaryFrame encodes p as a binary frame.
func EncodeBinaryFrame(p *Packet) ([]byte, error) {
	payload, err := payloadText(p.Payload)
	if err != nil {
		return nil, err
	}
	return appendBinary(nil, p.Type, p.From, p.To, p.Arg1, p.Arg2, payload), nil
}

// EncodeTextFrame encodes p as a length-tagged text frame.
func EncodeTextFrame(p *Packet) ([]byte, error) {
	payload, err := payloadText(p.Payload)
	if err != nil {
		return nil, err
	}
	body := fmt.Sprintf("%d %d %d %d %d", int(p.Type), p.From, p.To, p.Arg1, p.Arg2)
	if payload != "" {
		body += " " + EncodeURIComponent(payload)
	}
	if len(body) > maxTextBody {
		return nil, fmt.Errorf("text frame too long: %d bytes", len(body))
	}
	return []byte(fmt.Sprintf("%06d%s", len(body), body)), nil
}

func appendBinary(dst []byte, t FCType, from, to, arg1, arg2 int, payload string) []byte {
	var header [headerLen]byte
	magic := Magic
	binary.BigEndian.PutUint32(header[0:], uint32(magic))
	binary.BigEndian.PutUint32(header[4:], uint32(int32(t)))
	binary.BigEndian.PutUint32(header[8:], uint32(int32(from)))
	binary.BigEndian.PutUint32(header[12:], uint32(int32(to)))
	binary.BigEndian.PutUint32(header[16:], uint32(int32(arg1)))
	binary.BigEndian.PutUint32(header[20:], uint32(int32(arg2)))
	binary.BigEndian.PutUint32(header[24:], uint32(int32(len(payload))))
	dst = append(dst, header[:]...)
	return append(dst, payload...)
}

// Command is an outbound request to the chat server. From carries the
// sender's session id.
type Command struct {
	Type    FCType
	From    int
	To      int
	Arg1    int
	Arg2    int
	Payload string
}

// MarshalBinary encodes the command for plain socket transports.
func (c Command) MarshalBinary() ([]byte, error) {
	return appendBinary(nil, c.Type, c.From, c.To, c.Arg1, c.Arg2, c.Payload), nil
}

// MarshalText encodes the command for websocket transports.
func (c Command) MarshalText() ([]byte, error) {
	s := fmt.Sprintf("%d %d %d %d %d", int(c.Type), c.From, c.To, c.Arg1, c.Arg2)
	if c.Payload != "" {
		s += " " + c.Payload
	}
	return []byte(s + "\n\x00"), nil
}

// ParseTextCommand decodes one command in the outbound text format.
func ParseTextCommand(s string) (Command, error) {
	s = strings.TrimRight(s, "\x00")
	s = strings.TrimSuffix(s, "\n")
	parts := strings.SplitN(s, " ", 6)
	if len(parts) < 5 {
		return Command{}, fmt.Errorf("expected 5 integers, got %q", s)
	}
	var nums [5]int
	for i := range nums {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return Command{}, fmt.Errorf("field %d: %w", i, err)
		}
		nums[i] = n
	}
	cmd := Command{Type: FCType(nums[0]), From: nums[1], To: nums[2], Arg1: nums[3], Arg2: nums[4]}
	if len(parts) == 6 {
		cmd.Payload = parts[5]
	}
	return cmd, nil
}
