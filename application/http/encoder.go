package http

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/Ikken9/kusari/application/util/rule"
)

// RequestEncoder renders requests into HTTP/1.1 wire bytes:
//
//	METHOD SP target SP HTTP/1.1 CRLF
//	Host: authority CRLF
//	caller fields, in order CRLF
//	[Content-Length: n CRLF]     (only for a non-empty body)
//	CRLF
//	body
//
// No other field is synthesized and nothing is folded.
type RequestEncoder struct{}

func NewRequestEncoder() *RequestEncoder { return &RequestEncoder{} }

// Encode validates request and returns its wire bytes. authority becomes the
// value of the Host field. On an [*EncodingError] nothing is produced.
func (re *RequestEncoder) Encode(request Request, authority string) ([]byte, error) {
	if err := validateRequest(request, authority); err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(make([]byte, 0, estimateSize(request, authority)))

	re.encodeRequestLine(buf, request)

	writeLine(buf, Field{Name: "Host", Value: authority}.Text())
	for _, field := range request.Headers {
		writeLine(buf, field.Text())
	}
	if len(request.Body) > 0 {
		// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-8.6
		cl := Field{Name: "Content-Length", Value: strconv.Itoa(len(request.Body))}
		writeLine(buf, cl.Text())
	}

	// Write a empty line as all the headers are written.
	writeLine(buf, nil)

	buf.Write(request.Body)

	return buf.Bytes(), nil
}

func (re *RequestEncoder) encodeRequestLine(buf *bytes.Buffer, request Request) {
	buf.WriteString(request.Method)
	buf.WriteByte(rule.SP)
	buf.WriteString(request.Target)
	buf.WriteByte(rule.SP)
	buf.Write(Version11.Text())
	buf.Write(rule.CRLF)
}

func writeLine(buf *bytes.Buffer, line []byte) {
	buf.Write(line)
	buf.Write(rule.CRLF)
}

func estimateSize(request Request, authority string) int {
	n := len(request.Method) + len(request.Target) + len(authority) + 64
	for _, f := range request.Headers {
		n += len(f.Name) + len(f.Value) + 4
	}
	return n + len(request.Body)
}

func validateRequest(request Request, authority string) error {
	if !rule.IsValidToken(request.Method) {
		return &EncodingError{Part: "method", Reason: "not a valid token: " + strconv.Quote(request.Method)}
	}

	if request.Version != (Version{}) && request.Version != Version11 {
		return &EncodingError{Part: "version", Reason: request.Version.String() + " is not supported"}
	}

	if err := validateTarget(request.Target); err != nil {
		return err
	}

	if authority == "" || hasCTLOrSpace(authority) {
		return &EncodingError{Part: "authority", Reason: "must be a non-empty host[:port]: " + strconv.Quote(authority)}
	}

	for _, field := range request.Headers {
		if !rule.IsValidToken(field.Name) {
			return &EncodingError{Part: "header name", Reason: "not a valid token: " + strconv.Quote(field.Name)}
		}

		// Both are derived: Host from the authority, Content-Length from the body.
		if strings.EqualFold(field.Name, "Host") || strings.EqualFold(field.Name, "Content-Length") {
			return &EncodingError{Part: "header name", Reason: field.Name + " is set by the encoder"}
		}

		// A raw line break would let the value start a new field or end the head.
		if rule.ContainsLineBreak(field.Value) {
			return &EncodingError{Part: "header value", Reason: field.Name + " contains CR or LF"}
		}
	}

	return nil
}

// Only origin-form and asterisk-form are sent.
// Reference: https://datatracker.ietf.org/doc/html/rfc9112#section-3.2
func validateTarget(target string) error {
	switch {
	case target == "":
		return &EncodingError{Part: "target", Reason: "empty"}
	case target == "*":
		return nil
	case !strings.HasPrefix(target, "/"):
		return &EncodingError{Part: "target", Reason: "must be origin-form (\"/path?query\"): " + strconv.Quote(target)}
	case hasCTLOrSpace(target):
		return &EncodingError{Part: "target", Reason: "contains whitespace or control characters"}
	}
	return nil
}

func hasCTLOrSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c <= rule.SP || c == 0x7F {
			return true
		}
	}
	return false
}
