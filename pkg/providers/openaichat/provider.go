package openaichat

import (
	"context"
	"fmt"
	"io"
	"sort"

	go_openai "github.com/sashabaranov/go-openai"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/providers"
)

// Provider streams chat completions from the OpenAI API, reassembling
// fragmented tool-call deltas into the provider-neutral event sequence.
type Provider struct {
	client *go_openai.Client
}

func New(client *go_openai.Client) *Provider {
	return &Provider{client: client}
}

func NewWithAPIKey(apiKey string) *Provider {
	return &Provider{client: go_openai.NewClient(apiKey)}
}

var _ providers.Provider = &Provider{}

func (p *Provider) Stream(ctx context.Context, req providers.Request, onEvent func(providers.StreamEvent) error) error {
	oreq, err := makeRequest(req)
	if err != nil {
		return err
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, *oreq)
	if err != nil {
		return errors.Wrap(err, "create chat completion stream")
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close openai stream")
		}
	}()

	merger := newToolCallMerger()
	finishReason := ""

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Wrap(err, "receive stream chunk")
		}
		if len(response.Choices) == 0 {
			continue
		}
		choice := response.Choices[0]

		if choice.Delta.Content != "" {
			if err := onEvent(providers.StreamEvent{Kind: providers.StreamEventTextDelta, Text: choice.Delta.Content}); err != nil {
				return err
			}
		}

		for _, call := range choice.Delta.ToolCalls {
			evts := merger.add(call)
			for _, evt := range evts {
				if err := onEvent(evt); err != nil {
					return err
				}
			}
		}

		if choice.FinishReason != "" {
			// recorded verbatim; the turn loop owns interpretation
			finishReason = string(choice.FinishReason)
		}
	}

	for _, evt := range merger.finish() {
		if err := onEvent(evt); err != nil {
			return err
		}
	}

	if finishReason == "" {
		finishReason = providers.FinishReasonUnknown
	}
	return onEvent(providers.StreamEvent{Kind: providers.StreamEventFinish, Reason: finishReason})
}

func makeRequest(req providers.Request) (*go_openai.ChatCompletionRequest, error) {
	oreq := &go_openai.ChatCompletionRequest{
		Model:  req.Model,
		Stream: true,
	}

	for _, msg := range req.Messages {
		omsg := go_openai.ChatCompletionMessage{
			Content: msg.Content,
		}
		switch msg.Role {
		case providers.RoleSystem:
			omsg.Role = go_openai.ChatMessageRoleSystem
		case providers.RoleUser:
			omsg.Role = go_openai.ChatMessageRoleUser
		case providers.RoleAssistant:
			omsg.Role = go_openai.ChatMessageRoleAssistant
		case providers.RoleTool:
			omsg.Role = go_openai.ChatMessageRoleTool
			omsg.ToolCallID = msg.ToolCallID
		default:
			return nil, errors.Errorf("unsupported message role: %s", msg.Role)
		}
		for _, tc := range msg.ToolCalls {
			omsg.ToolCalls = append(omsg.ToolCalls, go_openai.ToolCall{
				ID:   tc.ID,
				Type: go_openai.ToolTypeFunction,
				Function: go_openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		oreq.Messages = append(oreq.Messages, omsg)
	}

	for _, tool := range req.Tools {
		oreq.Tools = append(oreq.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}

	return oreq, nil
}

// toolCallMerger reassembles tool-call fragments keyed by stream index.
// OpenAI delivers the call id and name on the first fragment for an index
// and argument text spread across subsequent fragments.
type toolCallMerger struct {
	order []int
	calls map[int]*mergedCall
}

type mergedCall struct {
	id      string
	started bool
}

func newToolCallMerger() *toolCallMerger {
	return &toolCallMerger{calls: make(map[int]*mergedCall)}
}

func (m *toolCallMerger) add(call go_openai.ToolCall) []providers.StreamEvent {
	index := 0
	if call.Index != nil {
		index = *call.Index
	}

	var evts []providers.StreamEvent
	existing, found := m.calls[index]
	if !found {
		existing = &mergedCall{}
		m.calls[index] = existing
		m.order = append(m.order, index)
	}
	if call.ID != "" {
		existing.id = call.ID
	}
	if existing.id == "" {
		existing.id = fmt.Sprintf("call_%d", index)
	}
	if !existing.started && call.Function.Name != "" {
		existing.started = true
		evts = append(evts, providers.StreamEvent{
			Kind:   providers.StreamEventToolCallStart,
			CallID: existing.id,
			Name:   call.Function.Name,
		})
	}
	if call.Function.Arguments != "" {
		evts = append(evts, providers.StreamEvent{
			Kind:     providers.StreamEventToolCallDelta,
			CallID:   existing.id,
			Fragment: call.Function.Arguments,
		})
	}
	return evts
}

// finish closes every started call in stream-index order.
func (m *toolCallMerger) finish() []providers.StreamEvent {
	order := append([]int{}, m.order...)
	sort.Ints(order)

	var evts []providers.StreamEvent
	for _, index := range order {
		call := m.calls[index]
		if call.started {
			evts = append(evts, providers.StreamEvent{
				Kind:   providers.StreamEventToolCallEnd,
				CallID: call.id,
			})
		}
	}
	return evts
}
