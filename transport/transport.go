// Package transport defines the byte-stream abstraction the HTTP engine runs on.
//
// A [Conn] is an ordered, reliable stream. Whether it is encrypted is decided by
// whoever produced it; the layers above never look.
package transport

type Protocol string

const (
	TCP  Protocol = "tcp"
	Pipe Protocol = "pipe"
)

type Addr interface {
	Network() string
	String() string
}
