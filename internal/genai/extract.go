package genai

import (
	"encoding/json"
	"strings"
)

// ExtractJSON locates the first balanced JSON object or array in text and
// returns it as validated raw JSON. Tracking of string literals and escape
// sequences means braces inside strings never confuse the scanner.
//
// If the balanced candidate fails to parse, a repair pass strips trailing
// commas and appends missing closers for truncated output, then reparses.
// Returns false when no usable JSON exists in the text.
func ExtractJSON(text string) (json.RawMessage, bool) {
	candidate := balancedCandidate(text)
	if candidate == "" {
		return nil, false
	}

	if json.Valid([]byte(candidate)) {
		return json.RawMessage(candidate), true
	}

	repaired := repairJSON(candidate)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), true
	}
	return nil, false
}

// balancedCandidate returns the substring from the first { or [ through its
// matching closer, or through end of input when the text is truncated.
func balancedCandidate(text string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			open = text[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == open:
			depth++
		case !inString && c == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	// Truncated: hand the remainder to the repair pass.
	return text[start:]
}

// repairJSON fixes the truncation artifacts the backend actually produces:
// trailing commas before closers, dangling commas at the cut point, an
// unterminated string literal, and unclosed containers.
func repairJSON(candidate string) string {
	repaired := stripTrailingCommas(candidate)

	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(repaired); i++ {
		c := repaired[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == '{' || c == '['):
			stack = append(stack, c)
		case !inString && (c == '}' || c == ']'):
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		repaired += `"`
	}
	repaired = strings.TrimRight(repaired, " \t\r\n")
	repaired = strings.TrimSuffix(repaired, ",")

	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			repaired += "}"
		} else {
			repaired += "]"
		}
	}
	return repaired
}

// stripTrailingCommas removes commas that directly precede a closer, outside
// of string literals.
func stripTrailingCommas(s string) string {
	var out strings.Builder
	out.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			out.WriteByte(c)
			continue
		}
		if inString {
			if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			out.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inString = true
			out.WriteByte(c)
		case ',':
			j := i + 1
			for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n' || s[j] == '\r') {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue // drop the comma
			}
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}
