package client

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/omochice/fcchat/pkg/protocol"
)

const tracerName = "github.com/omochice/fcchat/pkg/client"

func (c *Client) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "fcchat."+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// roundTrip registers m, calls send and waits for the matching answer.
// The request is traced and timed under name.
func (c *Client) roundTrip(ctx context.Context, name string, timeout time.Duration, m matcher, send func() error, attrs ...attribute.KeyValue) (p *protocol.Packet, err error) {
	ctx, span := c.startSpan(ctx, name, attrs...)
	start := time.Now()
	defer func() {
		endSpan(span, err)
		c.metrics.request(name, start, err)
	}()

	r := c.pending.add(name, m, false)
	if err := send(); err != nil {
		c.pending.remove(r)
		return nil, err
	}
	return c.pending.wait(ctx, r, timeout)
}
