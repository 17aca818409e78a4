// Package jsonutil extracts and parses JSON from model output that may be
// wrapped in markdown code fences, reasoning blocks or surrounding prose.
package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StripMarkdownFences removes ```json ... ``` or ``` ... ``` wrapping from text.
// Returns the content between the fences, or the original text if no fences are found.
func StripMarkdownFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) < 3 {
		return text
	}

	startIdx := 1 // skip the opening ``` line
	endIdx := len(lines) - 1

	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}

	return strings.Join(lines[startIdx:endIdx], "\n")
}

// StripThinking drops a leading <think>...</think> block emitted by
// reasoning models before their answer. An unterminated block is left alone.
func StripThinking(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "<think>") {
		return text
	}
	end := strings.Index(trimmed, "</think>")
	if end == -1 {
		return text
	}
	return strings.TrimSpace(trimmed[end+len("</think>"):])
}

// ExtractJSON returns the first complete JSON object or array in text.
// Brackets inside string literals are ignored, so trailing prose that
// happens to contain a brace does not confuse the match.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	if start == -1 {
		return "", fmt.Errorf("no JSON content found")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	closing := "}"
	if text[start] == '[' {
		closing = "]"
	}
	return "", fmt.Errorf("no closing %s found", closing)
}

// ParseJSON cleans raw model output (reasoning block, markdown fences,
// prose), extracts the JSON value and unmarshals it into T.
func ParseJSON[T any](raw string) (T, error) {
	var zero T

	text := StripMarkdownFences(StripThinking(raw))
	jsonStr, err := ExtractJSON(text)
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		preview := jsonStr
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, preview)
	}
	return result, nil
}
