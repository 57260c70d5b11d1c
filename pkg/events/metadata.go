package events

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Usage represents token usage information common across LLM providers
type Usage struct {
	InputTokens  int `json:"input_tokens" yaml:"input_tokens"`
	OutputTokens int `json:"output_tokens" yaml:"output_tokens"`
}

// EventMetadata carries correlation and model information for events.
type EventMetadata struct {
	ID        uuid.UUID `json:"message_id"`
	TurnID    string    `json:"turn_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Model     string    `json:"model,omitempty"`
	Usage     *Usage    `json:"usage,omitempty"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.TurnID != "" {
		e.Str("turn_id", em.TurnID)
	}
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}
