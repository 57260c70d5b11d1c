package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
	"github.com/go-go-golems/mangiafuoco/pkg/providers"
	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// ProviderEngine adapts a providers.Provider into an Engine. It owns the
// streaming state for one round-trip: text deltas concatenated in arrival
// order and tool-call argument fragments accumulated per call id. No parse
// of argument text happens here; reassembled strings land verbatim in the
// tool_call blocks and are only normalized at resolution time.
type ProviderEngine struct {
	provider providers.Provider
	model    string
	toolCfg  tools.ToolConfig
	retry    providers.RetryPolicy
}

type ProviderEngineOption func(*ProviderEngine)

func WithModel(model string) ProviderEngineOption {
	return func(e *ProviderEngine) { e.model = model }
}

func WithToolConfig(cfg tools.ToolConfig) ProviderEngineOption {
	return func(e *ProviderEngine) { e.toolCfg = cfg }
}

func WithRetryPolicy(policy providers.RetryPolicy) ProviderEngineOption {
	return func(e *ProviderEngine) { e.retry = policy }
}

func NewProviderEngine(provider providers.Provider, opts ...ProviderEngineOption) *ProviderEngine {
	e := &ProviderEngine{
		provider: provider,
		toolCfg:  tools.DefaultToolConfig(),
		retry:    providers.DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

var _ Engine = &ProviderEngine{}

// callAccumulator collects argument fragments for one tool call until the
// stream signals the call is complete.
type callAccumulator struct {
	id   string
	name string
	args strings.Builder
}

func (e *ProviderEngine) RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
	if t == nil {
		t = &turns.Turn{}
	}

	req := providers.Request{
		Model:    e.model,
		Messages: composeMessages(t),
		Tools:    e.composeTools(ctx),
	}

	metadata := events.EventMetadata{
		ID:     uuid.New(),
		TurnID: t.ID,
		Model:  e.model,
	}
	events.PublishEventToContext(ctx, events.NewStartEvent(metadata))

	var (
		text         strings.Builder
		accumulators map[string]*callAccumulator
		orderedIDs   []string
		finishReason string
	)

	run := func() error {
		// reset accumulation on each attempt so retried streams start clean
		text.Reset()
		accumulators = map[string]*callAccumulator{}
		orderedIDs = nil
		finishReason = ""

		return e.provider.Stream(ctx, req, func(evt providers.StreamEvent) error {
			switch evt.Kind {
			case providers.StreamEventTextDelta:
				text.WriteString(evt.Text)
				events.PublishEventToContext(ctx, events.NewPartialCompletionEvent(metadata, evt.Text, text.String()))
			case providers.StreamEventToolCallStart:
				if _, ok := accumulators[evt.CallID]; !ok {
					accumulators[evt.CallID] = &callAccumulator{id: evt.CallID, name: evt.Name}
					orderedIDs = append(orderedIDs, evt.CallID)
				}
			case providers.StreamEventToolCallDelta:
				acc, ok := accumulators[evt.CallID]
				if !ok {
					// fragment before start; keep it rather than drop the call
					acc = &callAccumulator{id: evt.CallID}
					accumulators[evt.CallID] = acc
					orderedIDs = append(orderedIDs, evt.CallID)
				}
				acc.args.WriteString(evt.Fragment)
			case providers.StreamEventToolCallEnd:
				if acc, ok := accumulators[evt.CallID]; ok {
					events.PublishEventToContext(ctx, events.NewToolCallEvent(metadata, events.ToolCallInfo{
						ID:    acc.id,
						Name:  acc.name,
						Input: acc.args.String(),
					}))
				}
			case providers.StreamEventFinish:
				finishReason = evt.Reason
			}
			return nil
		})
	}

	if err := e.retry.Do(ctx, run); err != nil {
		if ctx.Err() != nil {
			events.PublishEventToContext(ctx, events.NewInterruptEvent(metadata, text.String()))
			return nil, ctx.Err()
		}
		events.PublishEventToContext(ctx, events.NewErrorEvent(metadata, err))
		return nil, errors.Wrap(err, "provider inference")
	}

	if text.Len() > 0 {
		turns.AppendBlock(t, turns.NewAssistantTextBlock(text.String()))
	}
	for _, id := range orderedIDs {
		acc := accumulators[id]
		turns.AppendBlock(t, turns.NewToolCallBlock(acc.id, acc.name, acc.args.String()))
	}

	if finishReason == "" {
		finishReason = providers.FinishReasonUnknown
	}
	t.SetData(turns.DataKeyFinishReason, finishReason)

	log.Debug().
		Str("finish_reason", finishReason).
		Int("tool_calls", len(orderedIDs)).
		Int("text_len", text.Len()).
		Msg("inference step complete")

	events.PublishEventToContext(ctx, events.NewFinalEvent(metadata, text.String(), finishReason))
	return t, nil
}

// composeTools builds the tool definition list offered to the provider from
// the registry attached to the context, filtered by the allowed patterns.
func (e *ProviderEngine) composeTools(ctx context.Context) []providers.ToolSpec {
	if !e.toolCfg.Enabled || e.toolCfg.ToolChoice == tools.ToolChoiceNone {
		return nil
	}
	registry, ok := tools.RegistryFrom(ctx)
	if !ok {
		return nil
	}

	var specs []providers.ToolSpec
	for _, def := range e.toolCfg.FilterTools(registry.ListTools()) {
		params, err := json.Marshal(def.Parameters)
		if err != nil {
			log.Warn().Err(err).Str("tool", def.Name).Msg("skipping tool with unmarshalable schema")
			continue
		}
		specs = append(specs, providers.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		})
	}
	return specs
}

// composeMessages flattens the turn's blocks into the outbound message
// list. Consecutive assistant text and tool_call blocks merge into one
// assistant message so replayed histories keep provider-valid shape.
func composeMessages(t *turns.Turn) []providers.Message {
	var messages []providers.Message
	var current *providers.Message

	flush := func() {
		if current != nil {
			messages = append(messages, *current)
			current = nil
		}
	}
	assistant := func() *providers.Message {
		if current == nil {
			current = &providers.Message{Role: providers.RoleAssistant}
		}
		return current
	}

	for _, b := range t.Blocks {
		switch b.Kind {
		case turns.BlockKindSystem:
			flush()
			text, _ := b.Payload[turns.PayloadKeyText].(string)
			messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: text})
		case turns.BlockKindUser:
			flush()
			text, _ := b.Payload[turns.PayloadKeyText].(string)
			messages = append(messages, providers.Message{Role: providers.RoleUser, Content: text})
		case turns.BlockKindLLMText:
			text, _ := b.Payload[turns.PayloadKeyText].(string)
			msg := assistant()
			if msg.Content != "" && text != "" {
				msg.Content += "\n"
			}
			msg.Content += text
		case turns.BlockKindToolCall:
			id, _ := b.Payload[turns.PayloadKeyID].(string)
			name, _ := b.Payload[turns.PayloadKeyName].(string)
			msg := assistant()
			msg.ToolCalls = append(msg.ToolCalls, providers.ToolCallSpec{
				ID:        id,
				Name:      name,
				Arguments: rawArgsString(b.Payload[turns.PayloadKeyArgs]),
			})
		case turns.BlockKindToolUse:
			flush()
			id, _ := b.Payload[turns.PayloadKeyID].(string)
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    rawArgsString(b.Payload[turns.PayloadKeyResult]),
				ToolCallID: id,
			})
		}
	}
	flush()

	return messages
}

// rawArgsString renders a payload value to the string form providers expect.
func rawArgsString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			return string(b)
		}
		return fmt.Sprintf("%v", val)
	}
}
