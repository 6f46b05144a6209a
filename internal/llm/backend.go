package llm

import (
	"context"
	"fmt"
)

// Request is one non-streaming generation call.
type Request struct {
	Prompt      string
	Temperature float64
	MaxTokens   int
}

// Backend is a text-generation service. Generate must honour ctx deadlines.
type Backend interface {
	Generate(ctx context.Context, req Request) (string, error)
	Healthy(ctx context.Context) bool
}

// StatusError is a non-success HTTP answer from a backend.
type StatusError struct {
	Backend string
	Code    int
	Body    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error: status=%d body=%s", e.Backend, e.Code, e.Body)
}
