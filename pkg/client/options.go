package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/omochice/fcchat/internal/transport"
	"github.com/omochice/fcchat/pkg/model"
	"github.com/omochice/fcchat/pkg/protocol"
)

// NoWait makes EnsureConnected fail at once instead of waiting.
const NoWait time.Duration = -1

// Default timings.
const (
	DefaultSilenceTimeout      = 90 * time.Second
	DefaultStateSilenceTimeout = 120 * time.Second
	DefaultLoginTimeout        = 30 * time.Second
	DefaultJoinTimeout         = 5 * time.Second
	DefaultRequestTimeout      = 15 * time.Second

	webSocketKeepAlive = 15 * time.Second
	tcpKeepAlive       = 120 * time.Second
	writeTimeout       = 10 * time.Second
)

// ReconnectPolicy is the exponential backoff applied between reconnect
// attempts.
type ReconnectPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

// DefaultReconnectPolicy waits 5s, growing by half each time up to 40m.
var DefaultReconnectPolicy = ReconnectPolicy{
	Initial:    5 * time.Second,
	Multiplier: 1.5,
	Max:        2400 * time.Second,
}

// ChatEncoder turns typed chat text into the server's chat encoding.
type ChatEncoder interface {
	EncodeChat(ctx context.Context, raw string) (string, error)
}

// Challenger produces the answer to the modern login challenge.
type Challenger interface {
	Challenge(ctx context.Context, platform protocol.Platform) (string, error)
}

// PlainEncoder applies the chat pre-filters and leaves emotes alone.
type PlainEncoder struct{}

var plainReplacer = strings.NewReplacer("`", "'", "<~", "'", "~>", "'")

// EncodeChat implements ChatEncoder.
func (PlainEncoder) EncodeChat(_ context.Context, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" || !strings.Contains(raw, ":") {
		return raw, nil
	}
	return plainReplacer.Replace(raw), nil
}

// Options configures a Client. Zero durations are replaced by their
// defaults.
type Options struct {
	Transport             transport.Kind
	Platform              protocol.Platform
	UseCachedServerConfig bool

	SilenceTimeout      time.Duration
	StateSilenceTimeout time.Duration
	LoginTimeout        time.Duration
	// ConnectionTimeout bounds Connect. Zero waits forever.
	ConnectionTimeout time.Duration
	// KeepAliveInterval overrides the transport's keepalive period.
	KeepAliveInterval time.Duration
	JoinTimeout       time.Duration
	RequestTimeout    time.Duration
	Reconnect         ReconnectPolicy

	ModernLogin  bool
	PreserveHTML bool
	Username     string
	Password     string

	// Endpoint bypasses the server directory: host:port for TCP, a ws://
	// or wss:// URL for WebSocket.
	Endpoint string
	// WebBaseURL overrides https://www.<platform domain>.
	WebBaseURL string

	Logger         *slog.Logger
	Metrics        *Metrics
	TracerProvider trace.TracerProvider
	Registry       *model.Registry
	ChatEncoder    ChatEncoder
	Challenger     Challenger
	HTTPClient     *http.Client
	// Capture receives every decoded packet when set.
	Capture io.Writer
}

// DefaultOptions returns guest options for the websocket transport.
func DefaultOptions() Options {
	return Options{
		Transport:           transport.WebSocket,
		Platform:            protocol.PlatformMFC,
		SilenceTimeout:      DefaultSilenceTimeout,
		StateSilenceTimeout: DefaultStateSilenceTimeout,
		LoginTimeout:        DefaultLoginTimeout,
		JoinTimeout:         DefaultJoinTimeout,
		RequestTimeout:      DefaultRequestTimeout,
		Reconnect:           DefaultReconnectPolicy,
		Username:            "guest",
		Password:            "guest",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Platform == 0 {
		o.Platform = def.Platform
	}
	if o.SilenceTimeout == 0 {
		o.SilenceTimeout = def.SilenceTimeout
	}
	if o.StateSilenceTimeout == 0 {
		o.StateSilenceTimeout = def.StateSilenceTimeout
	}
	if o.LoginTimeout == 0 {
		o.LoginTimeout = def.LoginTimeout
	}
	if o.JoinTimeout == 0 {
		o.JoinTimeout = def.JoinTimeout
	}
	if o.RequestTimeout == 0 {
		o.RequestTimeout = def.RequestTimeout
	}
	if o.Reconnect.Initial == 0 {
		o.Reconnect.Initial = def.Reconnect.Initial
	}
	if o.Reconnect.Multiplier == 0 {
		o.Reconnect.Multiplier = def.Reconnect.Multiplier
	}
	if o.Reconnect.Max == 0 {
		o.Reconnect.Max = def.Reconnect.Max
	}
	if o.KeepAliveInterval == 0 {
		o.KeepAliveInterval = tcpKeepAlive
		if o.Transport == transport.WebSocket {
			o.KeepAliveInterval = webSocketKeepAlive
		}
	}
	if o.Username == "" {
		o.Username = def.Username
	}
	if o.Password == "" {
		o.Password = def.Password
	}
	if o.WebBaseURL == "" {
		o.WebBaseURL = "https://www." + o.Platform.BaseDomain()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registry == nil {
		o.Registry = defaultRegistry()
	}
	if o.ChatEncoder == nil {
		o.ChatEncoder = PlainEncoder{}
	}
	if o.HTTPClient == nil {
		o.HTTPClient = http.DefaultClient
	}
	return o
}
