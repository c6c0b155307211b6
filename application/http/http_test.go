package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseVersion(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		expected Version
		wantErr  bool
	}{
		{
			desc:     "http 1.1",
			input:    []byte("HTTP/1.1"),
			expected: Version{1, 1},
		},
		{
			desc:    "missing prefix",
			input:   []byte("1.1"),
			wantErr: true,
		},
		{
			desc:     "http 1.0",
			input:    []byte("HTTP/1.0"),
			expected: Version{1, 0},
		},
		{
			desc:    "missing prefix (partial)",
			input:   []byte("HTTP1.1"),
			wantErr: true,
		},
		{
			desc:    "lowercase prefix",
			input:   []byte("http/1.1"),
			wantErr: true,
		},
		{
			desc:    "missing seperator",
			input:   []byte("HTTP/1"),
			wantErr: true,
		},
		{
			desc:    "two seperators",
			input:   []byte("HTTP/1.1.1"),
			wantErr: true,
		},
		{
			desc:    "version not convertable to int",
			input:   []byte("HTTP/ayo.2"),
			wantErr: true,
		},
		{
			desc:    "negative version",
			input:   []byte("HTTP/1.-1"),
			wantErr: true,
		},
		{
			desc:    "signed version",
			input:   []byte("HTTP/+1.1"),
			wantErr: true,
		},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			ver, err := ParseVersion(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, ver)
		})
	}
}

func TestVersionToText(t *testing.T) {
	testcases := []struct {
		input    Version
		expected []byte
	}{
		{
			input:    Version{1, 1},
			expected: []byte("HTTP/1.1"),
		},
		{
			input:    Version{1, 0},
			expected: []byte("HTTP/1.0"),
		},
		{
			input:    Version{0, 1},
			expected: []byte("HTTP/0.1"),
		},
		{
			input:    Version{20, 1},
			expected: []byte("HTTP/20.1"),
		},
		{
			input:    Version{100, 100},
			expected: []byte("HTTP/100.100"),
		},
	}
	for _, tc := range testcases {
		t.Run(string(tc.expected), func(t *testing.T) {
			ver := tc.input
			assert.Equal(t, ver.Text(), tc.expected)
		})
	}
}

func TestParseField(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		expected Field
		wantErr  bool
	}{
		{
			desc:     "simple field",
			input:    []byte("Content-Type: text/html"),
			expected: Field{"Content-Type", "text/html"},
		},
		{
			desc:     "headers with leading and trailing whitespace",
			input:    []byte("Content-Type:   text/html\t  "),
			expected: Field{"Content-Type", "text/html"},
		},
		{
			desc:     "no space after colon",
			input:    []byte("Content-Type:text/html"),
			expected: Field{"Content-Type", "text/html"},
		},
		{
			desc:     "empty value",
			input:    []byte("X-Empty:"),
			expected: Field{"X-Empty", ""},
		},
		{
			desc:     "colon inside value",
			input:    []byte("Location: https://example.com:8443/"),
			expected: Field{"Location", "https://example.com:8443/"},
		},
		{
			desc:     "invalid utf-8 is replaced",
			input:    []byte("X-Name: caf\xe9"),
			expected: Field{"X-Name", "caf\uFFFD"},
		},
		{
			desc:    "field name is not a valid token",
			input:   []byte("content type: text/html"),
			wantErr: true,
		},
		{
			desc:    "no colon seperator",
			input:   []byte("content type text/html"),
			wantErr: true,
		},
		{
			desc:    "trailing whitespace on field name",
			input:   []byte("Content-Type : text/html"),
			wantErr: true,
		},
		{
			desc:    "obsolete line folding",
			input:   []byte(" continued: value"),
			wantErr: true,
		},
		{
			desc:    "empty name",
			input:   []byte(": value"),
			wantErr: true,
		},
		{
			desc:    "bare CR in value",
			input:   []byte("X-A: a\rb"),
			wantErr: true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			field, err := ParseField(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tc.expected, field)
		})
	}
}

func TestFieldToText(t *testing.T) {
	field := Field{"Host", "example.com"}
	expected := "Host: example.com"

	assert.Equal(t, expected, string(field.Text()))
}

func TestHeaders(t *testing.T) {
	h := Headers{
		{"Set-Cookie", "a=1"},
		{"Content-Type", "text/plain"},
		{"set-cookie", "b=2"},
	}

	t.Run("get is case-insensitive and returns the first", func(t *testing.T) {
		v, ok := h.Get("SET-COOKIE")
		assert.True(t, ok)
		assert.Equal(t, "a=1", v)
	})

	t.Run("last wins", func(t *testing.T) {
		v, ok := h.Last("Set-Cookie")
		assert.True(t, ok)
		assert.Equal(t, "b=2", v)
	})

	t.Run("values keeps order and duplicates", func(t *testing.T) {
		assert.Equal(t, []string{"a=1", "b=2"}, h.Values("set-cookie"))
		assert.Nil(t, h.Values("Missing"))
	})

	t.Run("missing", func(t *testing.T) {
		_, ok := h.Get("Missing")
		assert.False(t, ok)
		assert.False(t, h.Has("Missing"))
		assert.True(t, h.Has("content-type"))
	})

	t.Run("add and del", func(t *testing.T) {
		clone := h.Clone()
		clone.Add("X-Trace", "1")
		clone.Del("SET-cookie")

		assert.Equal(t, Headers{{"Content-Type", "text/plain"}, {"X-Trace", "1"}}, clone)
		// The source headers are untouched.
		assert.Len(t, h, 3)
		assert.Equal(t, "set-cookie", h[2].Name)
	})
}

func TestDecodeText(t *testing.T) {
	testcases := []struct {
		desc     string
		input    []byte
		expected string
	}{
		{desc: "ascii", input: []byte("OK"), expected: "OK"},
		{desc: "valid utf-8", input: []byte("d\u00e9j\u00e0 vu"), expected: "d\u00e9j\u00e0 vu"},
		{desc: "single invalid byte", input: []byte{0xff}, expected: "\uFFFD"},
		{desc: "latin-1 octet", input: []byte("Non Autoris\xe9"), expected: "Non Autoris\uFFFD"},
		{desc: "empty", input: nil, expected: ""},
	}
	for _, tc := range testcases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.expected, DecodeText(tc.input))
		})
	}
}

func TestResponseContentLength(t *testing.T) {
	r := Response{Headers: Headers{{"Content-Length", "42"}}}
	l, ok := r.ContentLength()
	assert.True(t, ok)
	assert.Equal(t, uint(42), l)

	r = Response{}
	_, ok = r.ContentLength()
	assert.False(t, ok)
}
