// Package llm talks to the chat completion provider.
package llm

import "context"

// Roles understood by the provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

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

// Client generates one reply for a conversation.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
