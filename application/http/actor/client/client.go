// Package client sends HTTP/1.1 requests over one session at a time.
//
// A Client connects to a single destination. Requests sent concurrently are
// written and answered one after another on that session; nothing is
// pipelined or pooled. When a session fails it stays failed until Connect is
// called again.
package client

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/Ikken9/kusari/application/http"
	"github.com/Ikken9/kusari/session"
	"github.com/Ikken9/kusari/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	ErrNotConnected  = errors.New("client is not connected")
	ErrNoSecurer     = errors.New("https destination needs a securer")
	ErrUnknownScheme = errors.New("unknown scheme")
)

type Client struct {
	connDialer transport.ConnDialer
	securer    session.Securer

	logger *slog.Logger
	clock  clock.Clock
	tracer trace.Tracer

	encoder *http.RequestEncoder

	mu   sync.Mutex
	conn *conn

	opts Options
}

func New(
	d transport.ConnDialer,
	securer session.Securer,
	logger *slog.Logger,
	clock clock.Clock,
	opts Options,
) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Client{
		connDialer: d,
		securer:    securer,
		logger:     logger,
		clock:      clock,
		tracer:     tracer,
		encoder:    http.NewRequestEncoder(),
		opts:       opts,
	}
}

// Connect opens a session to dest, replacing the current one.
// https destinations are secured; http destinations stay in plaintext.
func (c *Client) Connect(ctx context.Context, dest Destination) error {
	port, ok := dest.Port()
	if !ok {
		if port, ok = DefaultPort(dest.Scheme()); !ok {
			return errors.Wrapf(ErrUnknownScheme, "%q", dest.Scheme())
		}
	}

	var securer session.Securer
	switch strings.ToLower(dest.Scheme()) {
	case "https":
		if c.securer == nil {
			return ErrNoSecurer
		}
		securer = c.securer
	case "http":
	default:
		return errors.Wrapf(ErrUnknownScheme, "%q", dest.Scheme())
	}

	sess, err := session.Connect(ctx, c.connDialer, securer, dest.Host(), port, session.Options{
		Logger: c.logger,
		Clock:  c.clock,
	})
	if err != nil {
		return errors.Wrap(err, "connecting")
	}

	next := newConn(sess, dest, port, c.opts)

	c.mu.Lock()
	old := c.conn
	c.conn = next
	c.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			c.logger.Warn("closing previous session", slog.String("error", err.Error()))
		}
	}

	return nil
}

// Send writes request and waits for its response.
//
// An empty Target is replaced by the destination's path and query. Requests
// that cannot be encoded fail with [*http.EncodingError] before the session is
// touched. Any other failure leaves the session unusable. When the server sent
// more than the declared body, the response is returned together with an error
// matching [http.ErrContentLengthMismatch].
func (c *Client) Send(ctx context.Context, request http.Request) (*http.Response, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	if request.Target == "" {
		request.Target = conn.dest.Path()
	}

	ctx, span := c.tracer.Start(ctx, "HTTP "+request.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", request.Method),
			attribute.String("url.path", request.Target),
			attribute.String("server.address", conn.authority),
		),
	)
	defer span.End()

	start := c.clock.Now()
	res, err := c.send(ctx, conn, request)
	elapsed := c.clock.Since(start)

	attrs := []any{
		slog.String("method", request.Method),
		slog.String("target", request.Target),
		slog.Duration("elapsed", elapsed),
	}
	if res != nil {
		span.SetAttributes(attribute.Int("http.response.status_code", int(res.StatusCode)))
		attrs = append(attrs, slog.Uint64("status", uint64(res.StatusCode)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("request failed", append(attrs, slog.String("error", err.Error()))...)
		return res, err
	}

	c.logger.Debug("request done", attrs...)
	return res, nil
}

func (c *Client) send(ctx context.Context, conn *conn, request http.Request) (*http.Response, error) {
	wire, err := c.encoder.Encode(request, conn.authority)
	if err != nil {
		return nil, errors.Wrap(err, "encoding request")
	}

	res, err := conn.roundtrip(ctx, wire)
	if err != nil {
		return res, errors.Wrap(err, "error while request-response roundtrip")
	}

	return res, nil
}

// Err reports why the current session can no longer be used, if it cannot.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.sess.Err()
}

// Close closes the current session. The client may Connect again afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.close()
}
