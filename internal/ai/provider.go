package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the inference seam: given the conversation so far, produce the
// next assistant message.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ModelName() string
}

// StreamProvider is an optional interface. Providers may deliver the reply
// incrementally; chunk order is the order of the final content.
type StreamProvider interface {
	StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error)
}
