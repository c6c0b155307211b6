package http

import (
	"bytes"
	"strconv"

	"github.com/Ikken9/kusari/application/util/rule"

	"github.com/pkg/errors"
)

type DecodeOptions struct {
	// MaxHeaderBytes bounds the header block, status line and terminator included.
	// A response whose head does not fit fails with [ErrHeadersTooLarge].
	MaxHeaderBytes uint

	// ReadChunkSize is the most bytes requested from the stream at once.
	ReadChunkSize uint
}

var DefaultDecodeOptions = DecodeOptions{
	MaxHeaderBytes: 64 << 10,
	ReadChunkSize:  8 << 10,
}

// ChunkReader hands out bytes from a stream.
type ChunkReader interface {
	// ReadChunk returns at most max bytes.
	// A zero-length chunk without an error means the peer closed the stream.
	ReadChunk(max int) ([]byte, error)
}

type decodeState uint8

const (
	stateAccumulatingHeaders decodeState = iota + 1
	stateHeadersComplete
	stateCollectingBody
	stateDone
	stateFailed
)

// ResponseDecoder reads responses off one stream, one after another.
//
// It is meant to live as long as the stream: bytes that arrive past the end of
// a message are kept and become the start of the next one. After an error the
// decoder stays failed, as does the stream position it tracked.
type ResponseDecoder struct {
	opts DecodeOptions

	pending []byte
	err     error
}

func NewResponseDecoder(opts DecodeOptions) *ResponseDecoder {
	if opts.MaxHeaderBytes == 0 {
		opts.MaxHeaderBytes = DefaultDecodeOptions.MaxHeaderBytes
	}
	if opts.ReadChunkSize == 0 {
		opts.ReadChunkSize = DefaultDecodeOptions.ReadChunkSize
	}
	return &ResponseDecoder{opts: opts}
}

// Buffered returns how many bytes were read past the last decoded message.
func (rd *ResponseDecoder) Buffered() int { return len(rd.pending) }

// Err returns the error the decoder failed with, if any.
func (rd *ResponseDecoder) Err() error { return rd.err }

// decoding holds the progress of one message.
type decoding struct {
	state decodeState

	head []byte // status line and field lines, without the terminator.
	rest []byte // bytes read past the terminator.

	contentLength *uint
	response      Response
}

// Decode reads one response from r.
func (rd *ResponseDecoder) Decode(r ChunkReader) (*Response, error) {
	if rd.err != nil {
		return nil, errors.Wrap(rd.err, "decoder has failed before")
	}

	d := &decoding{state: stateAccumulatingHeaders}
	for {
		var err error
		switch d.state {
		case stateAccumulatingHeaders:
			err = rd.accumulateHeaders(r, d)
		case stateHeadersComplete:
			err = rd.parseHead(d)
		case stateCollectingBody:
			err = rd.collectBody(r, d)
		case stateDone:
			return &d.response, nil
		case stateFailed:
			return nil, rd.err
		}

		if err != nil {
			d.state = stateFailed
			rd.err = err
		}
	}
}

func (rd *ResponseDecoder) accumulateHeaders(r ChunkReader, d *decoding) error {
	limit := int(rd.opts.MaxHeaderBytes)
	chunkSize := int(rd.opts.ReadChunkSize)

	buf := rd.pending
	rd.pending = nil

	// Empty lines skipped before the status line still count against the limit.
	skipped, scanned := 0, 0
	for {
		// An empty line can be received before message.
		// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-2.2-6
		for bytes.HasPrefix(buf, rule.CRLF) {
			buf = buf[len(rule.CRLF):]
			skipped += len(rule.CRLF)
			scanned = 0
		}

		// The terminator may straddle the previous chunk.
		from := max(0, scanned-len(rule.HeaderTerminator)+1)
		if idx := bytes.Index(buf[from:], rule.HeaderTerminator); idx >= 0 {
			end := from + idx + len(rule.HeaderTerminator)
			if skipped+end > limit {
				return newProtocolError(HeadersTooLarge, errors.Errorf("header block is %d bytes, limit is %d", skipped+end, limit))
			}

			d.head = buf[:end-len(rule.HeaderTerminator)]
			d.rest = buf[end:]
			d.state = stateHeadersComplete
			return nil
		}
		scanned = len(buf)

		if skipped+len(buf) >= limit {
			return newProtocolError(HeadersTooLarge, errors.Errorf("no header terminator within %d bytes", limit))
		}

		// Never ask for more than the limit allows, so an endless head stops here.
		chunk, err := r.ReadChunk(min(chunkSize, limit-skipped-len(buf)))
		if err != nil {
			return errors.Wrap(err, "reading header block")
		}
		if len(chunk) == 0 {
			return newProtocolError(TruncatedHeaders, errors.Errorf("stream closed after %d header bytes", len(buf)))
		}

		buf = append(buf, chunk...)
	}
}

func (rd *ResponseDecoder) parseHead(d *decoding) error {
	lines := bytes.Split(d.head, rule.CRLF)

	version, code, reason, err := parseStatusLine(lines[0])
	if err != nil {
		return newProtocolError(MalformedStatusLine, err)
	}

	headers := make(Headers, 0, len(lines)-1)
	for _, line := range lines[1:] {
		field, err := ParseField(line)
		if err != nil {
			return newProtocolError(MalformedHeaderLine, err)
		}
		headers = append(headers, field)
	}

	d.contentLength, err = extractContentLength(headers)
	if err != nil {
		return newProtocolError(MalformedContentLength, err)
	}

	d.response = Response{
		Version:      version,
		StatusCode:   code,
		ReasonPhrase: reason,
		Headers:      headers,
	}
	d.state = stateCollectingBody

	return nil
}

// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-4
func parseStatusLine(line []byte) (Version, uint, string, error) {
	parts := bytes.SplitN(line, []byte{rule.SP}, 3)
	if len(parts) < 3 {
		return Version{}, 0, "", errors.Errorf("status line is malformed: %q", line)
	}

	ver, err := ParseVersion(parts[0])
	if err != nil {
		return Version{}, 0, "", errors.Wrap(err, "parsing version")
	}

	statusCodeStr := string(parts[1])
	if len(statusCodeStr) != 3 || !rule.IsDigits(statusCodeStr) {
		return Version{}, 0, "", errors.Errorf("status code is malformed: %q", statusCodeStr)
	}
	statusCode, err := strconv.ParseUint(statusCodeStr, 10, 64)
	if err != nil {
		return Version{}, 0, "", errors.Wrapf(err, "status code is malformed: %q", statusCodeStr)
	}

	return ver, uint(statusCode), DecodeText(parts[2]), nil
}

// extractContentLength returns nil when no Content-Length is present.
// Repeated fields must agree.
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6
func extractContentLength(h Headers) (*uint, error) {
	values := h.Values("Content-Length")
	if len(values) == 0 {
		return nil, nil
	}

	var length *uint
	for _, v := range values {
		if !rule.IsDigits(v) {
			return nil, errors.Errorf("Content-Length is not a non-negative integer: %q", v)
		}

		len64, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse Content-Length")
		}

		l := uint(len64)
		if length != nil && *length != l {
			return nil, errors.Errorf("conflicting Content-Length values: %v", values)
		}
		length = &l
	}

	return length, nil
}

func (rd *ResponseDecoder) collectBody(r ChunkReader, d *decoding) error {
	if d.contentLength == nil {
		// Without Content-Length the body is whatever arrived together with the
		// head. Nothing more is read: neither chunked coding nor read-until-close
		// is supported.
		d.response.Body = bytes.Clone(d.rest)
		if d.response.Body == nil {
			d.response.Body = []byte{}
		}
		d.state = stateDone
		return nil
	}

	length := *d.contentLength

	if uint(len(d.rest)) >= length {
		d.response.Body = bytes.Clone(d.rest[:length])
		if excess := d.rest[length:]; len(excess) > 0 {
			// These belong to whatever comes next, not to this body.
			rd.pending = bytes.Clone(excess)
		}
		d.state = stateDone
		return nil
	}

	// Do not trust a huge declared length for the allocation.
	body := make([]byte, 0, min(length, uint(len(d.rest))+rd.opts.ReadChunkSize))
	body = append(body, d.rest...)

	for uint(len(body)) < length {
		remaining := length - uint(len(body))

		chunk, err := r.ReadChunk(int(min(remaining, rd.opts.ReadChunkSize)))
		if err != nil {
			return errors.Wrap(err, "reading body")
		}
		if len(chunk) == 0 {
			return newProtocolError(TruncatedBody, errors.Errorf("stream closed after %d of %d body bytes", len(body), length))
		}

		if uint(len(chunk)) > remaining {
			rd.pending = bytes.Clone(chunk[remaining:])
			chunk = chunk[:remaining]
		}
		body = append(body, chunk...)
	}

	d.response.Body = body
	d.state = stateDone
	return nil
}
