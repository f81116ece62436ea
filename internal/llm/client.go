// Package llm delegates unmatched transactions to a generative inference
// service and parses its structured output.
package llm

import "context"

// Message is one role-tagged message in a completion request.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the provider-agnostic inference request.
type CompletionRequest struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// CompletionResponse carries the raw model output. The caller is responsible
// for parsing Content as structured data; parse failures are local,
// non-fatal errors.
type CompletionResponse struct {
	Content  string
	Provider string
}

// Client defines the interface for inference providers.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
