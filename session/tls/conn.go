package tls

import (
	"crypto/tls"
	"io"
	"net"
	"os"
	"time"

	"github.com/Ikken9/kusari/transport"
	"github.com/Ikken9/kusari/transport/tcp"

	"github.com/pkg/errors"
)

// Conn is an established TLS client stream.
type Conn struct {
	tls        *tls.Conn
	underlying transport.Conn
}

var _ transport.Conn = (*Conn)(nil)

func (conn *Conn) Read(p []byte) (int, error) {
	n, err := conn.tls.Read(p)
	return n, translateErr(err)
}

func (conn *Conn) Write(p []byte) (int, error) {
	n, err := conn.tls.Write(p)
	return n, translateErr(err)
}

// Close sends close_notify and closes the underlying stream.
func (conn *Conn) Close() error { return conn.tls.Close() }

func (conn *Conn) LocalAddr() transport.Addr    { return conn.underlying.LocalAddr() }
func (conn *Conn) RemoteAddr() transport.Addr   { return conn.underlying.RemoteAddr() }
func (conn *Conn) SetReadDeadLine(t time.Time)  { _ = conn.tls.SetReadDeadline(t) }
func (conn *Conn) SetWriteDeadLine(t time.Time) { _ = conn.tls.SetWriteDeadline(t) }

// Protocol returns the ALPN protocol. Empty means none was negotiated.
func (conn *Conn) Protocol() string {
	return conn.tls.ConnectionState().NegotiatedProtocol
}

// Version returns the negotiated TLS version, e.g. "TLS 1.3".
func (conn *Conn) Version() string {
	return tls.VersionName(conn.tls.ConnectionState().Version)
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, transport.ErrConnClosed):
		return transport.ErrConnClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	}
	return err
}

// toNetConn presents conn to crypto/tls.
// Streams that come from the operating system are handed over as they are.
func toNetConn(conn transport.Conn) net.Conn {
	if tc, ok := conn.(*tcp.Conn); ok {
		return tc.NetConn()
	}
	return &netConn{Conn: conn}
}

type netConn struct {
	transport.Conn
}

var _ net.Conn = (*netConn)(nil)

func (c *netConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if errors.Is(err, transport.ErrConnClosed) {
		err = io.EOF
	}
	return n, err
}

func (c *netConn) LocalAddr() net.Addr  { return c.Conn.LocalAddr() }
func (c *netConn) RemoteAddr() net.Addr { return c.Conn.RemoteAddr() }

func (c *netConn) SetDeadline(t time.Time) error {
	c.Conn.SetReadDeadLine(t)
	c.Conn.SetWriteDeadLine(t)
	return nil
}

func (c *netConn) SetReadDeadline(t time.Time) error {
	c.Conn.SetReadDeadLine(t)
	return nil
}

func (c *netConn) SetWriteDeadline(t time.Time) error {
	c.Conn.SetWriteDeadLine(t)
	return nil
}
