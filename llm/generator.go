package llm

import (
	"context"
	"errors"
)

var (
	// ErrUpstreamModel marks network, authentication, rate-limit and server failures talking to the backend.
	ErrUpstreamModel = errors.New("upstream model error")

	// ErrMalformedModelOutput marks a backend response that could not be parsed into the expected shape.
	ErrMalformedModelOutput = errors.New("malformed model output")
)

// Schema is a named JSON schema the backend must emit.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]interface{}
}

// Request is one generation call. A nil Schema asks for plain text.
type Request struct {
	// Name identifies the call in errors and logs (e.g. "discover").
	Name string

	Instructions string
	Input        string
	Temperature  float64

	Schema *Schema

	// MaxOutputTokens is optional (0 leaves the backend default).
	MaxOutputTokens int64
}

// Generator performs a single blocking generation call and returns the raw output text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
