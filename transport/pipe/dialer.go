package pipe

import (
	"context"
	"sync"

	"github.com/Ikken9/kusari/transport"

	"github.com/benbjohnson/clock"
)

// Dialer hands the far end of every dialed pipe to a serve function
// running on its own goroutine.
type Dialer struct {
	clock clock.Clock
	serve func(conn transport.Conn)

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ transport.ConnDialer = (*Dialer)(nil)

func NewDialer(clock clock.Clock, serve func(conn transport.Conn)) *Dialer {
	return &Dialer{clock: clock, serve: serve}
}

func (d *Dialer) Dial(ctx context.Context, addr transport.Addr) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, transport.ErrConnRefused
	}

	local, remote := NewPair("dialer", addr.String(), d.clock)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer remote.Close()
		d.serve(remote)
	}()

	return local, nil
}

// Close refuses further dials and waits for every serve call to return.
func (d *Dialer) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
