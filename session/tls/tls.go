// Package tls secures a [transport.Conn] with TLS as a client.
//
// The handshake and the record layer are crypto/tls. This package only
// configures trust, bridges the stream types and reports the result as a
// [transport.Conn] again.
//
// Reference:
// - https://datatracker.ietf.org/doc/html/rfc8446
// - https://datatracker.ietf.org/doc/html/rfc6066#section-3
package tls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"os"
	"time"

	"github.com/Ikken9/kusari/session"
	"github.com/Ikken9/kusari/transport"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

// The response parser only speaks HTTP/1.1, so nothing else is offered.
const alpnHTTP11 = "http/1.1"

type Config struct {
	// RootCAs verifies the server. nil uses the system pool, unless CAFile is set.
	RootCAs *x509.CertPool
	// CAFile is a PEM bundle loaded into a fresh pool when RootCAs is nil.
	CAFile string

	// KeyLogWriter receives secrets in NSS key log format, for debugging
	// with packet analyzers. It compromises the session's security.
	KeyLogWriter io.Writer

	// HandshakeTimeout bounds the handshake on top of the caller's context.
	// Zero means no extra bound.
	HandshakeTimeout time.Duration
}

// Securer runs client handshakes.
type Securer struct {
	base  *tls.Config
	clock clock.Clock

	handshakeTimeout time.Duration
}

var _ session.Securer = (*Securer)(nil)

func NewSecurer(clock clock.Clock, cfg Config) (*Securer, error) {
	roots := cfg.RootCAs
	if roots == nil && cfg.CAFile != "" {
		pool, err := loadCAFile(cfg.CAFile)
		if err != nil {
			return nil, errors.Wrap(err, "loading CA file")
		}
		roots = pool
	}

	return &Securer{
		base: &tls.Config{
			RootCAs:      roots,
			NextProtos:   []string{alpnHTTP11},
			MinVersion:   tls.VersionTLS12,
			KeyLogWriter: cfg.KeyLogWriter,
		},
		clock:            clock,
		handshakeTimeout: cfg.HandshakeTimeout,
	}, nil
}

func loadCAFile(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("no certificate found in %s", path)
	}
	return pool, nil
}

// Secure runs a handshake on conn, checking the certificate against
// serverName, which is also sent as SNI.
// On failure conn is left open; closing it is up to the caller.
func (s *Securer) Secure(ctx context.Context, conn transport.Conn, serverName string) (transport.Conn, error) {
	config := s.base.Clone()
	config.ServerName = serverName

	if s.handshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = s.clock.WithTimeout(ctx, s.handshakeTimeout)
		defer cancel()
	}

	tlsConn := tls.Client(toNetConn(conn), config)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, errors.Wrapf(err, "handshake with %s", serverName)
	}

	return &Conn{tls: tlsConn, underlying: conn}, nil
}
