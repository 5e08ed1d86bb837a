// Package driver defines the provider-neutral completion contract used to
// request error explanations, plus request tracing and provider errors.
package driver

import "context"

// Driver sends one completion request to a provider.
type Driver interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
	// Name returns the provider identifier reported in errors and traces.
	Name() string
}

// Message roles used by the explanation prompt.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Message is one plain-text chat turn.
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Usage contains token usage statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Request is a provider-agnostic completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   *int
	PromptSlug  string
	Metadata    map[string]string
}

// Response is a provider-agnostic completion response.
type Response struct {
	Content      string
	FinishReason string
	Usage        *Usage
}

// Text returns the completion text.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	return r.Content
}

// Truncated reports whether the provider stopped at the token limit.
func (r *Response) Truncated() bool {
	return r != nil && r.FinishReason == "length"
}
