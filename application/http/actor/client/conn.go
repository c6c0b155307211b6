package client

import (
	"context"

	"github.com/Ikken9/kusari/application/http"
	"github.com/Ikken9/kusari/session"

	"github.com/pkg/errors"
)

// conn is a session to one destination together with the parser state of its
// response stream.
type conn struct {
	sess *session.Session
	dec  *http.ResponseDecoder

	dest      Destination
	authority string
}

func newConn(sess *session.Session, dest Destination, port uint16, opts Options) *conn {
	return &conn{
		sess:      sess,
		dec:       http.NewResponseDecoder(opts.Receive.Decode),
		dest:      dest,
		authority: authority(dest, port),
	}
}

// roundtrip writes one encoded request and reads its response while holding
// the session, so cycles never interleave on the stream.
func (c *conn) roundtrip(ctx context.Context, wire []byte) (*http.Response, error) {
	h, err := c.sess.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring session")
	}
	defer h.Release()

	if err := h.Write(wire); err != nil {
		return nil, errors.Wrap(err, "writing request")
	}

	res, err := c.dec.Decode(h)
	if err != nil {
		h.Poison(err)
		return nil, errors.Wrap(err, "reading response")
	}

	// Nothing was asked for after this request, so trailing bytes mean the
	// server and we disagree on where the message ends.
	if n := c.dec.Buffered(); n > 0 {
		mismatch := http.NewContentLengthMismatch(n)
		h.Poison(mismatch)
		return res, mismatch
	}

	return res, nil
}

func (c *conn) close() error {
	return c.sess.Close()
}
