// Package pipe provides an in-memory, buffered [transport.Conn] pair.
// Writes never wait for the reader; reads block until bytes arrive,
// either side closes, or the read deadline passes.
package pipe

import (
	"bytes"
	"sync"
	"time"

	"github.com/Ikken9/kusari/transport"

	"github.com/benbjohnson/clock"
)

type Addr struct {
	Name string
}

func (a Addr) Network() string { return string(transport.Pipe) }
func (a Addr) String() string  { return a.Name }

var _ transport.Addr = Addr{}

// stream is one direction of a pipe.
type stream struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	notify chan struct{} // signalled after each write.
}

func newStream() *stream {
	return &stream{notify: make(chan struct{}, 1)}
}

func (s *stream) push(b []byte) {
	s.mu.Lock()
	s.buf.Write(b)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *stream) pull(p []byte) (n int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return 0, false
	}
	n, _ = s.buf.Read(p)
	return n, true
}

type pipe struct {
	in *stream // bytes written by the counterpart.

	closed chan struct{}
	once   sync.Once

	rdeadLine, wdeadLine *deadLine

	counterpart *pipe

	addr Addr
}

var _ transport.Conn = (*pipe)(nil)

// NewPair creates two connected pipes.
// Bytes written to one side can be read from the other.
func NewPair(name1, name2 string, clock clock.Clock) (c1, c2 *pipe) {
	c1 = &pipe{
		in:        newStream(),
		closed:    make(chan struct{}),
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
		addr:      Addr{Name: name1},
	}
	c2 = &pipe{
		in:        newStream(),
		closed:    make(chan struct{}),
		rdeadLine: newDeadLine(clock),
		wdeadLine: newDeadLine(clock),
		addr:      Addr{Name: name2},
	}
	c1.counterpart, c2.counterpart = c2, c1
	return
}

func (p *pipe) LocalAddr() transport.Addr  { return p.addr }
func (p *pipe) RemoteAddr() transport.Addr { return p.counterpart.addr }

func (p *pipe) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipe) Read(b []byte) (n int, err error) {
	if len(b) == 0 {
		return 0, nil
	}

	for {
		if isClosed(p.closed) {
			return 0, transport.ErrConnClosed
		}
		if isClosed(p.rdeadLine.wait()) {
			return 0, transport.ErrDeadLineExceeded
		}

		// Bytes the counterpart wrote before closing are still delivered.
		if n, ok := p.in.pull(b); ok {
			return n, nil
		}
		if isClosed(p.counterpart.closed) {
			return 0, transport.ErrConnClosed
		}

		select {
		case <-p.in.notify:
		case <-p.closed:
		case <-p.counterpart.closed:
		case <-p.rdeadLine.wait():
		}
	}
}

func (p *pipe) Write(b []byte) (n int, err error) {
	switch {
	case isClosed(p.closed), isClosed(p.counterpart.closed):
		return 0, transport.ErrConnClosed
	case isClosed(p.wdeadLine.wait()):
		return 0, transport.ErrDeadLineExceeded
	}

	if len(b) == 0 {
		return 0, nil
	}

	p.counterpart.in.push(b)
	return len(b), nil
}

func (p *pipe) SetReadDeadLine(t time.Time)  { p.rdeadLine.set(t) }
func (p *pipe) SetWriteDeadLine(t time.Time) { p.wdeadLine.set(t) }

type deadLine struct {
	clock clock.Clock

	t *clock.Timer
	m sync.Mutex

	expired chan struct{}
}

func newDeadLine(clock clock.Clock) *deadLine {
	return &deadLine{
		clock:   clock,
		expired: make(chan struct{}),
	}
}

func (d *deadLine) set(t time.Time) {
	d.m.Lock()
	defer d.m.Unlock()

	if d.t != nil {
		d.t.Stop()
		d.t = nil
	}

	if isClosed(d.expired) {
		d.expired = make(chan struct{})
	}

	if t.IsZero() {
		// zero value means no limit.
		return
	}

	expired := d.expired
	d.t = d.clock.AfterFunc(d.clock.Until(t), func() { close(expired) })
}

func (d *deadLine) wait() <-chan struct{} {
	d.m.Lock()
	defer d.m.Unlock()
	return d.expired
}

func isClosed(c <-chan struct{}) bool {
	select {
	case <-c:
		return true
	default:
		return false
	}
}
