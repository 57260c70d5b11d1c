package engine

import (
	"context"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// Engine performs one model round-trip over a Turn. Implementations consume
// the provider stream internally and append the resulting assistant blocks
// (llm_text and tool_call) to the returned Turn, recording the provider's
// finish reason in Turn.Data. Events are published through the EventSinks
// attached to the context.
type Engine interface {
	RunInference(ctx context.Context, t *turns.Turn) (*turns.Turn, error)
}
