// Package rule holds the lexical rules shared by the HTTP/1.1 wire codec.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6
package rule

const (
	CR   byte = '\r'
	LF   byte = '\n'
	SP   byte = ' '
	HTAB byte = '\t'
)

var (
	OWS  = []byte{SP, HTAB}
	CRLF = []byte{CR, LF}

	// HeaderTerminator is the empty line which ends a header block.
	HeaderTerminator = []byte{CR, LF, CR, LF}
)

func IsOWS(r rune) bool { return r == rune(SP) || r == rune(HTAB) }

func IsAlpha(r rune) bool { return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') }
func IsDigit(r rune) bool { return '0' <= r && r <= '9' }

// ContainsLineBreak reports whether s has a raw CR or LF in it.
// Such a value would end the field line early on the wire.
func ContainsLineBreak(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == CR || s[i] == LF {
			return true
		}
	}
	return false
}
