package ollamachat

import (
	"context"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"

	"github.com/go-go-golems/mangiafuoco/pkg/providers"
)

// Provider streams chat completions from a local ollama daemon. Ollama has
// no tool-call streaming, so only text deltas and the finish event are
// emitted; tool definitions in the request are ignored.
type Provider struct {
	client *api.Client
}

func New(client *api.Client) *Provider {
	return &Provider{client: client}
}

func NewFromEnvironment() (*Provider, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "create ollama client")
	}
	return &Provider{client: client}, nil
}

var _ providers.Provider = &Provider{}

func (p *Provider) Stream(ctx context.Context, req providers.Request, onEvent func(providers.StreamEvent) error) error {
	messages := make([]api.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := msg.Role
		if role == providers.RoleTool {
			// folded into the conversation as user-visible context
			role = providers.RoleUser
		}
		messages = append(messages, api.Message{
			Role:    role,
			Content: msg.Content,
		})
	}

	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   &stream,
	}

	var callbackErr error
	err := p.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		if resp.Done {
			callbackErr = onEvent(providers.StreamEvent{
				Kind:   providers.StreamEventFinish,
				Reason: providers.FinishReasonStop,
			})
			return callbackErr
		}
		if resp.Message.Content != "" {
			callbackErr = onEvent(providers.StreamEvent{
				Kind: providers.StreamEventTextDelta,
				Text: resp.Message.Content,
			})
			return callbackErr
		}
		return nil
	})
	if err != nil && callbackErr == nil {
		return errors.Wrap(err, "ollama chat")
	}
	return err
}
