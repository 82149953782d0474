package interfaces

import (
	"context"
)

// CompletionRequest is a provider-agnostic single-turn completion request.
// Model selects the provider by naming convention ("claude-*" or "gemini-*",
// optionally provider-prefixed); empty means the configured default.
type CompletionRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// CompletionResponse is the provider-agnostic completion result
type CompletionResponse struct {
	Text     string
	Model    string
	Provider string
}

// CompletionService is the inference collaborator boundary: prompt in, text
// out. Implementations may fail on provider errors or content-safety
// rejections; callers propagate those failures, never swallow them.
type CompletionService interface {
	Complete(ctx context.Context, request *CompletionRequest) (*CompletionResponse, error)
	Close() error
}
