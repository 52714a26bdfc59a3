// Package llm wraps the chat-completion providers the assistant can talk to.
package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrMissingCredential is returned by clients constructed without an API
// credential. Callers treat it like any other delegate failure.
var ErrMissingCredential = errors.New("llm: missing api credential")

// ErrEmptyResponse is returned when the provider answers without choices.
var ErrEmptyResponse = errors.New("llm: empty response")

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client performs a single chat-completion round trip.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
