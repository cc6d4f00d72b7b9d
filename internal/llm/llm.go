package llm

import (
	"context"
	"errors"
)

// Client abstracts model providers used for structured extraction.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one JSON-mode completion.
type Request struct {
	// Model overrides the client's default model when set.
	Model  string
	System string
	Prompt string
}

// ErrNotConfigured is returned by Disabled.
var ErrNotConfigured = errors.New("llm provider not configured")

// Disabled is used when no provider is configured; every extraction fails cleanly.
type Disabled struct{}

// Complete returns ErrNotConfigured.
func (Disabled) Complete(ctx context.Context, req Request) (string, error) {
	_ = ctx
	_ = req
	return "", ErrNotConfigured
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Complete calls f.
func (f ClientFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
