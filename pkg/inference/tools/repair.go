package tools

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// repairJSONish applies the best-effort repairs for payloads cut mid-stream
// or containing raw control characters: re-escape control characters inside
// string literals, drop trailing commas, close an unterminated string and
// balance any brackets left open. The result is a candidate for re-parsing,
// not guaranteed valid.
func repairJSONish(text string) string {
	text = reEscapeControlChars(text)
	text = balanceJSON(text)
	return text
}

// reEscapeControlChars replaces raw control characters appearing inside
// string literals with their JSON escape sequences. Models emit literal
// newlines inside strings often enough that this is worth a pass of its own.
func reEscapeControlChars(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inString := false
	escaped := false
	for _, r := range text {
		if !inString {
			if r == '"' {
				inString = true
			}
			b.WriteRune(r)
			continue
		}
		if escaped {
			escaped = false
			b.WriteRune(r)
			continue
		}
		switch {
		case r == '\\':
			escaped = true
			b.WriteRune(r)
		case r == '"':
			inString = false
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20:
			// JSON \u escapes take exactly four hex digits
			b.WriteString(fmt.Sprintf(`\u%04x`, r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// balanceJSON closes an unterminated string literal, trims a dangling comma
// or completes a dangling colon, removes trailing commas before closers,
// and closes brackets and braces opened but never closed.
func balanceJSON(text string) string {
	var stack []byte
	inString := false
	escaped := false

	var b strings.Builder
	b.Grow(len(text) + 8)

	flushTrailingComma := func() {
		// remove a comma (plus whitespace) sitting directly before a closer
		s := b.String()
		trimmed := strings.TrimRightFunc(s, unicode.IsSpace)
		if strings.HasSuffix(trimmed, ",") {
			b.Reset()
			b.WriteString(strings.TrimSuffix(trimmed, ","))
		}
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			b.WriteByte(c)
			if escaped {
				escaped = false
				continue
			}
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
			b.WriteByte(c)
		case '{', '[':
			stack = append(stack, c)
			b.WriteByte(c)
		case '}', ']':
			flushTrailingComma()
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	if inString {
		// a trailing lone backslash cannot start a valid escape
		if escaped {
			s := b.String()
			b.Reset()
			b.WriteString(s[:len(s)-1])
		}
		b.WriteByte('"')
	}

	// complete a dangling "key": or drop a trailing comma before closing
	s := strings.TrimRightFunc(b.String(), unicode.IsSpace)
	if strings.HasSuffix(s, ":") {
		s += " null"
	} else {
		s = strings.TrimSuffix(s, ",")
	}
	b.Reset()
	b.WriteString(s)

	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			b.WriteByte('}')
		case '[':
			b.WriteByte(']')
		}
	}

	return b.String()
}

// parseKeyValuePairs extracts a structured object from payloads shaped like
// key=value or key: value pairs, separated by newlines or commas. All
// segments must parse, and at least one pair must be present; a payload
// where only some segments look like pairs stays unparsed so the
// irrecoverable path can report it.
func parseKeyValuePairs(text string) (map[string]any, bool) {
	if looksLikeJSON(text) {
		return nil, false
	}

	segments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == ','
	})

	result := map[string]any{}
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		key, value, ok := splitPair(seg)
		if !ok || !isIdentifier(key) {
			return nil, false
		}
		result[key] = coerceScalar(value)
	}
	if len(result) == 0 {
		return nil, false
	}
	return result, true
}

func splitPair(seg string) (string, string, bool) {
	for _, sep := range []string{"=", ":"} {
		if idx := strings.Index(seg, sep); idx > 0 {
			key := strings.TrimSpace(seg[:idx])
			value := strings.TrimSpace(seg[idx+len(sep):])
			return key, strings.Trim(value, `"'`), true
		}
	}
	return "", "", false
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if unicode.IsLetter(r) || r == '_' || (i > 0 && (unicode.IsDigit(r) || r == '-')) {
			continue
		}
		return false
	}
	return true
}

func coerceScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return float64(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

// recoverStringFields salvages whatever quoted string fields can still be
// read out of JSON-ish text too damaged for the structural repairs. Field
// names are discovered by scanning for "name": markers; non-string values
// are left behind.
func recoverStringFields(text string) (map[string]any, bool) {
	result := map[string]any{}
	for _, name := range scanFieldNames(text) {
		if v, ok := RecoverStringField(text, name); ok {
			result[name] = v
		}
	}
	if len(result) == 0 {
		return nil, false
	}
	return result, true
}

func scanFieldNames(text string) []string {
	var names []string
	seen := map[string]bool{}
	for i := 0; i < len(text); {
		idx := strings.IndexByte(text[i:], '"')
		if idx < 0 {
			break
		}
		start := i + idx + 1
		end := strings.IndexByte(text[start:], '"')
		if end < 0 {
			break
		}
		name := text[start : start+end]
		rest := strings.TrimLeftFunc(text[start+end+1:], unicode.IsSpace)
		if isIdentifier(name) && strings.HasPrefix(rest, ":") && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		i = start + end + 1
	}
	return names
}

// RecoverStringField pulls one known string field out of JSON-ish text even
// when the surrounding object is too damaged to parse, e.g. a truncated
// payload whose content field holds most of the bytes. Returns the unescaped
// value up to the closing quote or end of input.
func RecoverStringField(text string, field string) (string, bool) {
	marker := `"` + field + `"`
	idx := strings.Index(text, marker)
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(marker):]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return "", false
	}
	rest = strings.TrimLeftFunc(rest[colon+1:], unicode.IsSpace)
	if rest == "" || rest[0] != '"' {
		return "", false
	}
	rest = rest[1:]

	var b strings.Builder
	escaped := false
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if escaped {
			escaped = false
			switch c {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"', '\\', '/':
				b.WriteByte(c)
			default:
				b.WriteByte('\\')
				b.WriteByte(c)
			}
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			return b.String(), true
		default:
			b.WriteByte(c)
		}
	}
	// truncated mid-string: keep what was recovered
	return b.String(), b.Len() > 0
}
