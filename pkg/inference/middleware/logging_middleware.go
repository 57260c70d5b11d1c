package middleware

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// NewTurnLoggingMiddleware logs turn and block details before and after
// inference. Missing IDs are logged as empty.
func NewTurnLoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
			lg := logger.With().
				Str("turn_id", t.ID).
				Int("block_count", len(t.Blocks)).
				Logger()

			lg.Debug().Msg("turn: starting inference")
			start := time.Now()

			result, err := next(ctx, t)
			if err != nil {
				lg.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("turn: inference failed")
				return result, err
			}

			var numLLM, numToolCall, numToolUse int
			for _, b := range result.Blocks {
				switch b.Kind {
				case turns.BlockKindLLMText:
					numLLM++
				case turns.BlockKindToolCall:
					numToolCall++
				case turns.BlockKindToolUse:
					numToolUse++
				}
			}

			lg.Debug().
				Dur("elapsed", time.Since(start)).
				Int("result_block_count", len(result.Blocks)).
				Int("llm_text_blocks", numLLM).
				Int("tool_call_blocks", numToolCall).
				Int("tool_use_blocks", numToolUse).
				Str("finish_reason", result.GetDataString(turns.DataKeyFinishReason)).
				Msg("turn: inference complete")

			return result, nil
		}
	}
}
