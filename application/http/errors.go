package http

import (
	"fmt"

	"github.com/pkg/errors"
)

type ProtocolErrorKind uint8

const (
	MalformedStatusLine ProtocolErrorKind = iota + 1
	MalformedHeaderLine
	MalformedContentLength
	HeadersTooLarge
	TruncatedHeaders
	TruncatedBody
	ContentLengthMismatch
)

func (k ProtocolErrorKind) String() string {
	switch k {
	case MalformedStatusLine:
		return "malformed status line"
	case MalformedHeaderLine:
		return "malformed header line"
	case MalformedContentLength:
		return "malformed content length"
	case HeadersTooLarge:
		return "headers too large"
	case TruncatedHeaders:
		return "truncated headers"
	case TruncatedBody:
		return "truncated body"
	case ContentLengthMismatch:
		return "content length mismatch"
	}
	return fmt.Sprintf("protocol error kind %d", uint8(k))
}

// ProtocolError reports a response that does not follow the wire format.
// The stream it was read from is left at an undefined position.
//
// Errors match the Err* sentinels below by kind:
//
//	errors.Is(err, http.ErrHeadersTooLarge)
type ProtocolError struct {
	Kind  ProtocolErrorKind
	cause error
}

func newProtocolError(kind ProtocolErrorKind, cause error) *ProtocolError {
	return &ProtocolError{Kind: kind, cause: cause}
}

func (e *ProtocolError) Error() string {
	if e.cause == nil {
		return "http: " + e.Kind.String()
	}
	return fmt.Sprintf("http: %s: %s", e.Kind, e.cause)
}

func (e *ProtocolError) Cause() error  { return e.cause }
func (e *ProtocolError) Unwrap() error { return e.cause }

func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	return ok && t.Kind == e.Kind
}

var (
	ErrMalformedStatusLine    = &ProtocolError{Kind: MalformedStatusLine}
	ErrMalformedHeaderLine    = &ProtocolError{Kind: MalformedHeaderLine}
	ErrMalformedContentLength = &ProtocolError{Kind: MalformedContentLength}
	ErrHeadersTooLarge        = &ProtocolError{Kind: HeadersTooLarge}
	ErrTruncatedHeaders       = &ProtocolError{Kind: TruncatedHeaders}
	ErrTruncatedBody          = &ProtocolError{Kind: TruncatedBody}
	ErrContentLengthMismatch  = &ProtocolError{Kind: ContentLengthMismatch}
)

// EncodingError reports a request that cannot be put on the wire as given.
// It is raised before anything is written.
type EncodingError struct {
	Part   string // e.g. "method", "header value"
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("http: cannot encode %s: %s", e.Part, e.Reason)
}

// Is makes every EncodingError match [ErrEncoding].
func (e *EncodingError) Is(target error) bool {
	_, ok := target.(*EncodingError)
	return ok
}

var ErrEncoding = &EncodingError{}

// NewContentLengthMismatch reports n bytes received past the declared body.
func NewContentLengthMismatch(n int) error {
	return newProtocolError(ContentLengthMismatch, errors.Errorf("%d byte(s) received past the declared Content-Length", n))
}
