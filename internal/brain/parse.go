package brain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xkilldash9x/uiprobe/api/schemas"
	"github.com/xkilldash9x/uiprobe/internal/llmutil"
)

// DefaultReasoning fills in for a reply that omitted its reasoning.
const DefaultReasoning = "No reasoning provided."

var (
	ErrMissingType       = errors.New("action is missing the required 'type' field")
	ErrUnknownActionType = errors.New("unknown action type")
)

// ParseActionStrict decodes a reply that is exactly one JSON object,
// optionally wrapped in a code fence.
func ParseActionStrict(text string) (schemas.AgentAction, error) {
	a, err := llmutil.ParseStrict[schemas.AgentAction](text)
	if err != nil {
		return schemas.AgentAction{}, err
	}
	return validateAction(*a)
}

// ParseActionLenient decodes the first balanced JSON object found in the reply.
func ParseActionLenient(text string) (schemas.AgentAction, error) {
	a, err := llmutil.ParseLenient[schemas.AgentAction](text)
	if err != nil {
		return schemas.AgentAction{}, err
	}
	return validateAction(*a)
}

// ParseAction tries the strict parser and falls back to the lenient one.
func ParseAction(text string) (schemas.AgentAction, error) {
	a, strictErr := ParseActionStrict(text)
	if strictErr == nil {
		return a, nil
	}
	a, lenientErr := ParseActionLenient(text)
	if lenientErr == nil {
		return a, nil
	}
	return schemas.AgentAction{}, fmt.Errorf("%w (direct parse: %v)", lenientErr, strictErr)
}

func validateAction(a schemas.AgentAction) (schemas.AgentAction, error) {
	a.Type = schemas.ActionType(strings.ToLower(strings.TrimSpace(string(a.Type))))
	if a.Type == "" {
		return schemas.AgentAction{}, ErrMissingType
	}
	if !a.Type.Valid() {
		return schemas.AgentAction{}, fmt.Errorf("%w: %q", ErrUnknownActionType, a.Type)
	}
	if strings.TrimSpace(a.Reasoning) == "" {
		a.Reasoning = DefaultReasoning
	}
	return a.Normalize(), nil
}
