package middleware

import (
	"context"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/mangiafuoco/pkg/turns"
)

// NewSystemPromptMiddleware ensures a fixed system prompt is present as the
// first system block. If a system block already exists on the Turn, the
// prompt text is appended to it (separated by a blank line); otherwise a new
// system block is inserted at the beginning.
func NewSystemPromptMiddleware(prompt string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
			if t == nil {
				t = &turns.Turn{}
			}
			if prompt == "" {
				return next(ctx, t)
			}

			firstSystemIdx := -1
			for i, b := range t.Blocks {
				if b.Kind == turns.BlockKindSystem {
					firstSystemIdx = i
					break
				}
			}

			if firstSystemIdx >= 0 {
				block := &t.Blocks[firstSystemIdx]
				if block.Payload == nil {
					block.Payload = map[string]any{}
				}
				existing, _ := block.Payload[turns.PayloadKeyText].(string)
				if existing == "" {
					block.Payload[turns.PayloadKeyText] = prompt
				} else if !strings.Contains(existing, prompt) {
					block.Payload[turns.PayloadKeyText] = existing + "\n\n" + prompt
				}
			} else {
				t.Blocks = append([]turns.Block{turns.NewSystemTextBlock(prompt)}, t.Blocks...)
				log.Debug().Str("turn_id", t.ID).Msg("systemprompt: inserted system block")
			}

			return next(ctx, t)
		}
	}
}

// NewTemplatedSystemPromptMiddleware renders the prompt as a template with
// sprig functions before insertion. The turn's metadata map is the template
// data, so prompts can interpolate session values.
func NewTemplatedSystemPromptMiddleware(promptTemplate string) (Middleware, error) {
	tmpl, err := template.New("system-prompt").Funcs(sprig.TxtFuncMap()).Parse(promptTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "parse system prompt template")
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, t *turns.Turn) (*turns.Turn, error) {
			if t == nil {
				t = &turns.Turn{}
			}

			var sb strings.Builder
			if err := tmpl.Execute(&sb, t.Metadata); err != nil {
				return nil, errors.Wrap(err, "render system prompt template")
			}

			return NewSystemPromptMiddleware(sb.String())(next)(ctx, t)
		}
	}, nil
}
