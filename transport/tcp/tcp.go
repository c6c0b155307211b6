// Package tcp dials TCP streams through the operating system's network stack
// and exposes them as [transport.Conn].
package tcp

import (
	"context"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/Ikken9/kusari/transport"

	"github.com/pkg/errors"
)

type Addr struct {
	host string
	port uint16
}

var _ transport.Addr = Addr{}

func NewAddr(host string, port uint16) Addr {
	return Addr{host: host, port: port}
}

func (a Addr) Host() string    { return a.host }
func (a Addr) Port() uint16    { return a.port }
func (a Addr) Network() string { return string(transport.TCP) }

// String returns host:port, bracketing IPv6 literals.
func (a Addr) String() string {
	return net.JoinHostPort(a.host, strconv.FormatUint(uint64(a.port), 10))
}

type DialerOptions struct {
	// KeepAlive is passed to [net.Dialer]. Zero enables the system default.
	KeepAlive time.Duration
}

type Dialer struct {
	nd net.Dialer
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(opts DialerOptions) *Dialer {
	return &Dialer{nd: net.Dialer{KeepAlive: opts.KeepAlive}}
}

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	if addr.Network() != string(transport.TCP) {
		return nil, errors.Errorf("unsupported network %q", addr.Network())
	}

	nc, err := d.nd.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, errors.Wrapf(err, "dialing %s", addr)
	}

	return WrapConn(nc), nil
}

// Conn adapts a [net.Conn] to [transport.Conn].
type Conn struct {
	nc net.Conn
}

var _ transport.Conn = (*Conn)(nil)

func WrapConn(nc net.Conn) *Conn { return &Conn{nc: nc} }

// NetConn returns the underlying connection, e.g. for a TLS client to wrap.
func (c *Conn) NetConn() net.Conn { return c.nc }

func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.nc.Read(p)
	return n, translateErr(err)
}

func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.nc.Write(p)
	return n, translateErr(err)
}

func (c *Conn) Close() error { return c.nc.Close() }

func (c *Conn) LocalAddr() transport.Addr  { return FromNetAddr(c.nc.LocalAddr()) }
func (c *Conn) RemoteAddr() transport.Addr { return FromNetAddr(c.nc.RemoteAddr()) }

func (c *Conn) SetReadDeadLine(t time.Time)  { _ = c.nc.SetReadDeadline(t) }
func (c *Conn) SetWriteDeadLine(t time.Time) { _ = c.nc.SetWriteDeadline(t) }

// FromNetAddr converts a net.Addr. A port that cannot be parsed becomes 0.
func FromNetAddr(a net.Addr) Addr {
	if a == nil {
		return Addr{}
	}
	host, portStr, err := net.SplitHostPort(a.String())
	if err != nil {
		return Addr{host: a.String()}
	}
	port, _ := strconv.ParseUint(portStr, 10, 16)
	return Addr{host: host, port: uint16(port)}
}

func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return transport.ErrConnClosed
	case errors.Is(err, os.ErrDeadlineExceeded):
		return transport.ErrDeadLineExceeded
	}
	return err
}
