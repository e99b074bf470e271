package client

import (
	"sync"
	"time"

	"github.com/omochice/fcchat/pkg/protocol"
)

// EventType identifies a connection event.
type EventType int

const (
	// EventConnected fires when the transport opened.
	EventConnected EventType = iota
	// EventDisconnected fires when a connection was lost or closed.
	EventDisconnected
	// EventManualDisconnect fires when Disconnect is called.
	EventManualDisconnect
	// EventLoggedIn fires when the server accepted the login.
	EventLoggedIn
	// EventModelsLoaded fires once per connection when the initial model
	// and tag lists were processed.
	EventModelsLoaded
)

// String returns the event name
func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "CLIENT_CONNECTED"
	case EventDisconnected:
		return "CLIENT_DISCONNECTED"
	case EventManualDisconnect:
		return "CLIENT_MANUAL_DISCONNECT"
	case EventLoggedIn:
		return "CLIENT_LOGGED_IN"
	case EventModelsLoaded:
		return "CLIENT_MODELSLOADED"
	default:
		return "UNKNOWN"
	}
}

// Event describes a connection state change.
type Event struct {
	Type EventType
	// DoLogin is set on EventConnected when a login follows.
	DoLogin bool
	// WasLoggedIn, Reason and ReconnectIn are set on EventDisconnected.
	// ReconnectIn is zero after a manual disconnect.
	WasLoggedIn bool
	Reason      string
	ReconnectIn time.Duration
}

// PacketFunc receives dispatched packets. It runs on the connection's read
// goroutine: it may send commands but must not wait for a correlated
// answer.
type PacketFunc func(*protocol.Packet)

// EventFunc receives connection events.
type EventFunc func(Event)

type entry[F any] struct {
	id int
	fn F
}

type listeners struct {
	mu     sync.Mutex
	next   int
	byType map[protocol.FCType][]entry[PacketFunc]
	any    []entry[PacketFunc]
	events []entry[EventFunc]
}

func removeEntry[F any](list []entry[F], id int) []entry[F] {
	for i, e := range list {
		if e.id == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func fns[F any](list []entry[F]) []F {
	out := make([]F, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

// OnPacket calls fn for every packet of type t. The returned func
// unsubscribes.
func (c *Client) OnPacket(t protocol.FCType, fn PacketFunc) func() {
	l := &c.listeners
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	if l.byType == nil {
		l.byType = make(map[protocol.FCType][]entry[PacketFunc])
	}
	l.byType[t] = append(l.byType[t], entry[PacketFunc]{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.byType[t] = removeEntry(l.byType[t], id)
	}
}

// OnAnyPacket calls fn for every packet, after the per-type listeners.
func (c *Client) OnAnyPacket(fn PacketFunc) func() {
	l := &c.listeners
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.any = append(l.any, entry[PacketFunc]{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.any = removeEntry(l.any, id)
	}
}

// OnEvent calls fn for every connection event.
func (c *Client) OnEvent(fn EventFunc) func() {
	l := &c.listeners
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.events = append(l.events, entry[EventFunc]{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = removeEntry(l.events, id)
	}
}

func (c *Client) emitPacket(p *protocol.Packet) {
	l := &c.listeners
	l.mu.Lock()
	typed, all := fns(l.byType[p.Type]), fns(l.any)
	l.mu.Unlock()
	for _, fn := range typed {
		fn(p)
	}
	for _, fn := range all {
		fn(p)
	}
}

func (c *Client) emit(e Event) {
	l := &c.listeners
	l.mu.Lock()
	list := fns(l.events)
	l.mu.Unlock()
	c.logger.Debug("emitting event", "event", e.Type.String())
	for _, fn := range list {
		fn(e)
	}
}
