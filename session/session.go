// Package session owns one secure byte stream to a single destination and
// serializes the request/response cycles that use it.
//
// A cycle acquires the session, writes its request, reads its response in
// chunks and releases it. Only one cycle holds the session at a time. Any
// failure on the stream poisons the session: it is never reused afterwards,
// and reconnecting is left to the owner.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	iolib "github.com/Ikken9/kusari/lib/io"
	"github.com/Ikken9/kusari/transport"
	"github.com/Ikken9/kusari/transport/tcp"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var (
	ErrClosed = errors.New("session is closed")

	// errPeerClosed poisons a session whose peer ended the stream.
	errPeerClosed = errors.New("peer closed the stream")

	errHandleReleased = errors.New("handle is already released")
)

// Securer wraps a raw stream into an encrypted one, authenticating the peer
// as serverName.
type Securer interface {
	Secure(ctx context.Context, conn transport.Conn, serverName string) (transport.Conn, error)
}

type Options struct {
	// Logger receives session events. nil discards them.
	Logger *slog.Logger
	// Clock stamps the last activity. nil uses the wall clock.
	Clock clock.Clock
}

type Session struct {
	id   uuid.UUID
	conn transport.Conn

	// guard holds a token while a cycle owns the session.
	guard chan struct{}

	logger *slog.Logger
	clock  clock.Clock

	mu           sync.Mutex
	poisonedBy   error
	lastActivity time.Time
}

// Connect dials host:port and secures the stream with securer.
// A nil securer leaves the stream in plaintext.
func Connect(
	ctx context.Context,
	dialer transport.ConnDialer,
	securer Securer,
	host string, port uint16,
	opts Options,
) (*Session, error) {
	addr := tcp.NewAddr(host, port)

	conn, err := dialer.Dial(ctx, addr)
	if err != nil {
		return nil, &ConnectionError{Addr: addr.String(), Stage: "dial", cause: err}
	}

	if securer != nil {
		secured, err := securer.Secure(ctx, conn, host)
		if err != nil {
			_ = conn.Close()
			return nil, &ConnectionError{Addr: addr.String(), Stage: "handshake", cause: err}
		}
		conn = secured
	}

	s := New(conn, opts)
	s.logger.Debug("session established", slog.String("addr", addr.String()), slog.Bool("secure", securer != nil))

	return s, nil
}

// New wraps an already established stream.
func New(conn transport.Conn, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}

	id := uuid.New()

	return &Session{
		id:           id,
		conn:         conn,
		guard:        make(chan struct{}, 1),
		logger:       opts.Logger.With(slog.String("session", id.String())),
		clock:        opts.Clock,
		lastActivity: opts.Clock.Now(),
	}
}

func (s *Session) ID() string { return s.id.String() }

// LastActivity returns when bytes last moved on the stream.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Err returns a non-nil error once the session is poisoned.
// It matches [ErrPoisoned] and the cause of the poisoning.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poisonedBy == nil {
		return nil
	}
	return &poisonedError{cause: s.poisonedBy}
}

// Acquire waits until no other cycle holds the session.
// ctx bounds only the wait; I/O done through the handle is not interrupted.
func (s *Session) Acquire(ctx context.Context) (*Handle, error) {
	if err := s.Err(); err != nil {
		return nil, err
	}

	select {
	case s.guard <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "waiting for session")
	}

	// It may have failed while we were waiting.
	if err := s.Err(); err != nil {
		<-s.guard
		return nil, err
	}

	return &Handle{s: s}, nil
}

// Close poisons the session and closes the stream.
func (s *Session) Close() error {
	s.poison(ErrClosed)
	if err := s.conn.Close(); err != nil && !errors.Is(err, transport.ErrConnClosed) {
		return errors.Wrap(err, "closing stream")
	}
	return nil
}

func (s *Session) poison(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.poisonedBy != nil {
		return
	}
	s.poisonedBy = cause

	if cause != ErrClosed {
		s.logger.Warn("session poisoned", slog.String("cause", cause.Error()))
	}
}

func (s *Session) touch() {
	now := s.clock.Now()

	s.mu.Lock()
	s.lastActivity = now
	s.mu.Unlock()
}

// Handle is the exclusive right to use a session for one cycle.
type Handle struct {
	s *Session

	once     sync.Once
	released bool
}

func (h *Handle) check() error {
	if h.released {
		return errHandleReleased
	}
	return h.s.Err()
}

// Write puts all of p on the stream.
func (h *Handle) Write(p []byte) error {
	if err := h.check(); err != nil {
		return err
	}

	if _, err := iolib.WriteFull(h.s.conn, p); err != nil {
		ioErr := &IoError{Op: "write", cause: err}
		h.s.poison(ioErr)
		return ioErr
	}
	h.s.touch()

	return nil
}

// maxEmptyReads bounds how many (0, nil) reads ReadChunk tolerates in a row.
const maxEmptyReads = 100

// ReadChunk returns between 1 and max bytes from the stream, as many as are
// available. A zero-length chunk means the peer closed the stream; the
// session is poisoned then, since nothing more can follow.
func (h *Handle) ReadChunk(max int) ([]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if max <= 0 {
		return nil, errors.Errorf("invalid chunk size %d", max)
	}

	buf := make([]byte, max)
	for empty := 0; ; empty++ {
		n, err := h.s.conn.Read(buf)
		if n > 0 {
			// Any error comes back on the next read.
			h.s.touch()
			return buf[:n], nil
		}

		switch {
		case err == nil && empty < maxEmptyReads:
			continue
		case err == nil:
			ioErr := &IoError{Op: "read", cause: io.ErrNoProgress}
			h.s.poison(ioErr)
			return nil, ioErr
		case errors.Is(err, transport.ErrConnClosed), errors.Is(err, io.EOF):
			h.s.poison(errPeerClosed)
			return []byte{}, nil
		default:
			ioErr := &IoError{Op: "read", cause: err}
			h.s.poison(ioErr)
			return nil, ioErr
		}
	}
}

// Poison marks the session unusable, for failures found above the stream
// such as a malformed response.
func (h *Handle) Poison(cause error) {
	h.s.poison(cause)
}

// Release gives the session back. Calling it more than once is harmless.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.released = true
		<-h.s.guard
	})
}
