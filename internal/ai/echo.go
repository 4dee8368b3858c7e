package ai

import (
	"context"
	"strings"
)

const EchoModel = "echo-bot"

// EchoProvider is the default deterministic provider: it replies with the
// last user turn prefixed by "Echo: ". It stands in for a real model until
// one is wired behind the same seam.
type EchoProvider struct{}

func NewEchoProvider() *EchoProvider { return &EchoProvider{} }

func (p *EchoProvider) ModelName() string { return EchoModel }

func (p *EchoProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "Echo: " + lastUserContent(messages), nil
}

// StreamChat delivers the reply word by word so the SSE path can be
// exercised without a real model.
func (p *EchoProvider) StreamChat(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		reply, err := p.Chat(ctx, messages)
		if err != nil {
			errs <- err
			return
		}
		words := strings.SplitAfter(reply, " ")
		for _, w := range words {
			select {
			case chunks <- w:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}
