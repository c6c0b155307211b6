// Package http implements the HTTP/1.1 wire format for a client.
//
// [RequestEncoder] renders a [Request] into its exact byte sequence.
// [ResponseDecoder] reassembles a [Response] from a stream that hands out bytes
// in chunks of arbitrary size, delimiting the body by Content-Length.
//
// Chunked transfer coding, trailers and HTTP/2 framing are not supported.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110
//
// - https://datatracker.ietf.org/doc/html/rfc9112
package http
