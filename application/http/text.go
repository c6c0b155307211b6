package http

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// DecodeText turns raw header bytes into a string.
//
// Decoding is lossy on purpose: every ill-formed UTF-8 sequence is replaced by
// U+FFFD, so octets from other charsets (e.g. Latin-1 reason phrases) do not
// survive. Valid input is returned unchanged.
func DecodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	// The decoder replaces ill-formed sequences instead of failing.
	decoded, _ := unicode.UTF8.NewDecoder().Bytes(b)
	return string(decoded)
}
