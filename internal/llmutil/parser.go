// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNoJSONObject is returned when no balanced {...} span exists in a response.
var ErrNoJSONObject = errors.New("no JSON object found in response")

// fenceRegex matches a whole response wrapped in a markdown code fence, with an
// optional language tag. \x60 is a backtick; Go raw strings cannot contain one.
var fenceRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z0-9_-]*\\s*(.*?)\\s*\x60\x60\x60$")

// StripCodeFence removes surrounding markdown code-fence markers, if any.
func StripCodeFence(response string) string {
	response = strings.TrimSpace(response)
	if matches := fenceRegex.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	// A reply can open a fence and never close it.
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```")
		if nl := strings.IndexByte(response, '\n'); nl >= 0 && !strings.ContainsAny(response[:nl], "{[") {
			response = response[nl+1:]
		}
		response = strings.TrimSuffix(strings.TrimSpace(response), "```")
	}
	return strings.TrimSpace(response)
}

// ExtractBalancedObject returns the first balanced {...} span in s. Braces inside
// JSON string literals (including escaped quotes) are ignored.
func ExtractBalancedObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
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
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					return s[start : i+1], nil
				}
			}
		}
		// Unbalanced from this brace; try the next opening brace.
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}

// ParseStrict decodes the fence-stripped response directly into T.
func ParseStrict[T any](response string) (*T, error) {
	text := StripCodeFence(response)
	var result T
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal LLM JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(text, 200))
	}
	return &result, nil
}

// ParseLenient extracts the first balanced object from the response and decodes it into T.
func ParseLenient[T any](response string) (*T, error) {
	span, err := ExtractBalancedObject(StripCodeFence(response))
	if err != nil {
		return nil, err
	}
	var result T
	if err := json.Unmarshal([]byte(span), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extracted JSON object: %w. Extracted JSON (truncated): %s", err, Truncate(span, 200))
	}
	return &result, nil
}

// ParseJSONResponse tries ParseStrict and falls back to ParseLenient.
func ParseJSONResponse[T any](response string) (*T, error) {
	result, strictErr := ParseStrict[T](response)
	if strictErr == nil {
		return result, nil
	}
	result, lenientErr := ParseLenient[T](response)
	if lenientErr == nil {
		return result, nil
	}
	return nil, fmt.Errorf("%w (direct parse: %v)", lenientErr, strictErr)
}

// Truncate shortens s to at most maxRunes runes, appending "..." when cut.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}
