package client

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Destination is where a client connects and what it puts in Host.
type Destination interface {
	Scheme() string
	Host() string
	// Port returns the explicit port, or false when the URL has none.
	Port() (uint16, bool)
	// Path returns the origin-form target: path and query.
	Path() string
}

// DefaultPort returns the port used when the destination names none.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-4.2
func DefaultPort(scheme string) (uint16, bool) {
	switch strings.ToLower(scheme) {
	case "https":
		return 443, true
	case "http":
		return 80, true
	}
	return 0, false
}

// URL adapts [url.URL] to [Destination].
type URL struct {
	u    *url.URL
	port *uint16
}

var _ Destination = (*URL)(nil)

// ParseURL parses an absolute http or https URL.
func ParseURL(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing url")
	}

	if _, ok := DefaultPort(u.Scheme); !ok {
		return nil, errors.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, errors.Errorf("url has no host: %q", raw)
	}
	if u.User != nil {
		return nil, errors.New("credentials in url are not supported")
	}

	dest := &URL{u: u}
	if portStr := u.Port(); portStr != "" {
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid port %q", portStr)
		}
		p := uint16(port)
		dest.port = &p
	}

	return dest, nil
}

func (d *URL) Scheme() string { return strings.ToLower(d.u.Scheme) }
func (d *URL) Host() string   { return d.u.Hostname() }

func (d *URL) Port() (uint16, bool) {
	if d.port == nil {
		return 0, false
	}
	return *d.port, true
}

func (d *URL) Path() string { return d.u.RequestURI() }

func (d *URL) String() string { return d.u.String() }

// authority renders the Host value for dest connected at port.
// The port is left out when it is the scheme's default.
func authority(dest Destination, port uint16) string {
	host := dest.Host()
	if def, ok := DefaultPort(dest.Scheme()); ok && def == port {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
}
