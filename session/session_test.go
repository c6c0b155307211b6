package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Ikken9/kusari/transport"
	"github.com/Ikken9/kusari/transport/pipe"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

type SessionTestSuite struct {
	suite.Suite

	clock *clock.Mock
	wire  transport.Conn
	peer  transport.Conn
	sess  *Session
}

func TestSessionTestSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.clock = clock.NewMock()
	s.wire, s.peer = pipe.NewPair("client", "server", s.clock)
	s.sess = New(s.wire, Options{Clock: s.clock})
}

func (s *SessionTestSuite) TearDownTest() {
	defer goleak.VerifyNone(s.T())
	s.NoError(s.sess.Close())
	s.NoError(s.peer.Close())
}

func (s *SessionTestSuite) TestWriteAndRead() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	s.Require().NoError(h.Write([]byte("ping")))

	buf := make([]byte, 4)
	_, err = io.ReadFull(s.peer, buf)
	s.Require().NoError(err)
	s.Equal("ping", string(buf))

	_, err = s.peer.Write([]byte("pong!"))
	s.Require().NoError(err)

	chunk, err := h.ReadChunk(3)
	s.Require().NoError(err)
	s.Equal("pon", string(chunk))

	chunk, err = h.ReadChunk(3)
	s.Require().NoError(err)
	s.Equal("g!", string(chunk))

	s.NoError(s.sess.Err())
}

func (s *SessionTestSuite) TestLastActivity() {
	start := s.sess.LastActivity()

	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	s.clock.Add(5 * time.Second)
	s.Require().NoError(h.Write([]byte("x")))

	s.Equal(start.Add(5*time.Second), s.sess.LastActivity())
}

func (s *SessionTestSuite) TestPeerClosed() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	_, err = s.peer.Write([]byte("last"))
	s.Require().NoError(err)
	s.Require().NoError(s.peer.Close())

	chunk, err := h.ReadChunk(16)
	s.Require().NoError(err)
	s.Equal("last", string(chunk))

	chunk, err = h.ReadChunk(16)
	s.Require().NoError(err)
	s.Empty(chunk)
	s.NotNil(chunk)

	s.ErrorIs(s.sess.Err(), ErrPoisoned)
}

func (s *SessionTestSuite) TestPoisonedFailsFast() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)

	cause := errors.New("malformed response")
	h.Poison(cause)
	h.Poison(errors.New("second cause is ignored"))

	s.ErrorIs(h.Write([]byte("x")), cause)
	h.Release()

	_, err = s.sess.Acquire(context.Background())
	s.ErrorIs(err, ErrPoisoned)
	s.ErrorIs(err, cause)
}

func (s *SessionTestSuite) TestWriteErrorPoisons() {
	s.Require().NoError(s.peer.Close())

	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	err = h.Write([]byte("x"))

	var ioErr *IoError
	s.Require().True(errors.As(err, &ioErr))
	s.Equal("write", ioErr.Op)
	s.ErrorIs(err, transport.ErrConnClosed)
	s.ErrorIs(s.sess.Err(), ErrPoisoned)
}

func (s *SessionTestSuite) TestReadErrorPoisons() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	s.wire.SetReadDeadLine(s.clock.Now().Add(time.Second))
	s.clock.Add(2 * time.Second)

	_, err = h.ReadChunk(8)

	var ioErr *IoError
	s.Require().True(errors.As(err, &ioErr))
	s.Equal("read", ioErr.Op)
	s.ErrorIs(err, transport.ErrDeadLineExceeded)
	s.ErrorIs(s.sess.Err(), ErrPoisoned)
}

// stallingConn reads nothing and reports no error.
type stallingConn struct {
	transport.Conn
	reads int
}

func (sc *stallingConn) Read([]byte) (int, error) {
	sc.reads++
	return 0, nil
}

func (sc *stallingConn) Close() error { return nil }

func TestReadWithoutProgress(t *testing.T) {
	conn := &stallingConn{}
	sess := New(conn, Options{Clock: clock.NewMock()})
	defer sess.Close()

	h, err := sess.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	_, err = h.ReadChunk(8)

	var ioErr *IoError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, "read", ioErr.Op)
	assert.ErrorIs(t, err, io.ErrNoProgress)
	assert.ErrorIs(t, sess.Err(), ErrPoisoned)
	assert.Equal(t, maxEmptyReads+1, conn.reads)
}

func (s *SessionTestSuite) TestReleasedHandle() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)

	h.Release()
	h.Release()

	s.ErrorIs(h.Write([]byte("x")), errHandleReleased)
	_, err = h.ReadChunk(1)
	s.ErrorIs(err, errHandleReleased)
}

func (s *SessionTestSuite) TestAcquireHonorsContextWhileWaiting() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)
	defer h.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.sess.Acquire(ctx)
	s.ErrorIs(err, context.Canceled)
}

func (s *SessionTestSuite) TestExclusive() {
	const cycles = 20

	var (
		mu      sync.Mutex
		holders int
		maxSeen int
		wg      sync.WaitGroup
	)

	for range cycles {
		wg.Add(1)
		go func() {
			defer wg.Done()

			h, err := s.sess.Acquire(context.Background())
			if !s.NoError(err) {
				return
			}
			defer h.Release()

			mu.Lock()
			holders++
			maxSeen = max(maxSeen, holders)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			holders--
			mu.Unlock()
		}()
	}

	wg.Wait()
	s.Equal(1, maxSeen)
}

func (s *SessionTestSuite) TestAcquireAfterPoisonWhileWaiting() {
	h, err := s.sess.Acquire(context.Background())
	s.Require().NoError(err)

	result := make(chan error, 1)
	go func() {
		_, err := s.sess.Acquire(context.Background())
		result <- err
	}()

	h.Poison(errors.New("broken"))
	h.Release()

	s.ErrorIs(<-result, ErrPoisoned)
}

func (s *SessionTestSuite) TestClose() {
	s.Require().NoError(s.sess.Close())

	_, err := s.sess.Acquire(context.Background())
	s.ErrorIs(err, ErrClosed)

	_, err = s.peer.Read(make([]byte, 1))
	s.ErrorIs(err, transport.ErrConnClosed)
}

func TestConnect(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := pipe.NewDialer(clock.New(), func(conn transport.Conn) {
		_, _ = conn.Write([]byte("hello"))
	})
	defer d.Close()

	sess, err := Connect(context.Background(), d, nil, "example.com", 80, Options{})
	require.NoError(t, err)
	defer sess.Close()

	h, err := sess.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	chunk, err := h.ReadChunk(16)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(chunk))
	assert.NotEmpty(t, sess.ID())
}

type failingSecurer struct{ err error }

func (fs failingSecurer) Secure(context.Context, transport.Conn, string) (transport.Conn, error) {
	return nil, fs.err
}

type failingDialer struct{ err error }

func (fd failingDialer) Dial(context.Context, transport.Addr) (transport.Conn, error) {
	return nil, fd.err
}

func TestConnectErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("dial", func(t *testing.T) {
		_, err := Connect(context.Background(), failingDialer{err: transport.ErrConnRefused}, nil, "h", 443, Options{})

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "dial", connErr.Stage)
		assert.Equal(t, "h:443", connErr.Addr)
		assert.ErrorIs(t, err, transport.ErrConnRefused)
	})

	t.Run("handshake", func(t *testing.T) {
		d := pipe.NewDialer(clock.New(), func(conn transport.Conn) {})
		defer d.Close()

		cause := errors.New("bad certificate")
		_, err := Connect(context.Background(), d, failingSecurer{err: cause}, "h", 443, Options{})

		var connErr *ConnectionError
		require.ErrorAs(t, err, &connErr)
		assert.Equal(t, "handshake", connErr.Stage)
		assert.ErrorIs(t, err, cause)
	})
}
