package client

import (
	"github.com/Ikken9/kusari/application/http"

	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Receive ReceiveOptions

	// Tracer starts a span for every Send. nil disables tracing.
	Tracer trace.Tracer
}

type ReceiveOptions struct {
	Decode http.DecodeOptions
}
