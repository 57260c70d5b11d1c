package tools

import (
	"encoding/json"
	"strings"
)

// NormalizedArguments is the result of best-effort recovery of a raw
// tool-call argument payload. Either Value holds a structured object, or
// Irrecoverable is set with the original text and a reason. An irrecoverable
// payload is never coerced to an empty object: that would hide preflight
// failures and discard model intent.
type NormalizedArguments struct {
	Value         map[string]any
	Raw           string
	Repaired      bool
	Irrecoverable bool
	Reason        string
}

// JSON renders the structured value back to compact JSON for execution.
func (na NormalizedArguments) JSON() json.RawMessage {
	if na.Irrecoverable {
		return nil
	}
	b, err := json.Marshal(na.Value)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func structuredArgs(value map[string]any, raw string, repaired bool) NormalizedArguments {
	return NormalizedArguments{Value: value, Raw: raw, Repaired: repaired}
}

func irrecoverableArgs(raw string, reason string) NormalizedArguments {
	return NormalizedArguments{Raw: raw, Irrecoverable: true, Reason: reason}
}

// Normalize recovers a structured argument object from the raw payload as
// received from the model stream. The pipeline is ordered, first success
// wins: strict JSON parse, double-encoded unwrap, JSON-ish repair,
// key=value extraction, string-field salvage. Pure over its input, no I/O.
func Normalize(raw json.RawMessage) NormalizedArguments {
	text := strings.TrimPrefix(string(raw), "\uFEFF")
	text = strings.TrimSpace(text)

	// An absent payload means the model sent no arguments at all, which is
	// distinct from unparsable text.
	if text == "" || text == "null" {
		return structuredArgs(map[string]any{}, text, false)
	}

	if m, ok := parseJSONObject(text); ok {
		return structuredArgs(m, text, false)
	}

	// Stringified object: the whole payload is a JSON string literal whose
	// content is itself an object.
	if inner, ok := unwrapJSONString(text); ok {
		if m, ok := parseJSONObject(inner); ok {
			return structuredArgs(m, text, true)
		}
		if m, ok := parseJSONObject(repairJSONish(inner)); ok {
			return structuredArgs(m, text, true)
		}
	}

	if repaired := repairJSONish(text); repaired != text {
		if m, ok := parseJSONObject(repaired); ok {
			return structuredArgs(m, text, true)
		}
	}

	if m, ok := parseKeyValuePairs(text); ok {
		return structuredArgs(m, text, true)
	}

	if looksLikeJSON(text) {
		// last resort before giving up: pull out the string fields that are
		// still readable even though the object as a whole is not
		if m, ok := recoverStringFields(text); ok {
			return structuredArgs(m, text, true)
		}
		return irrecoverableArgs(text, "payload resembles JSON but could not be parsed or repaired")
	}
	return irrecoverableArgs(text, "payload is not a JSON object and has no recoverable structure")
}

// parseJSONObject strictly parses text into a JSON object. Valid JSON that
// is not an object (arrays, scalars) does not qualify.
func parseJSONObject(text string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, true
}

// unwrapJSONString unquotes a payload that is a single JSON string literal.
func unwrapJSONString(text string) (string, bool) {
	if len(text) < 2 || text[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return "", false
	}
	return s, true
}

func looksLikeJSON(text string) bool {
	return strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") || strings.HasPrefix(text, "\"")
}
