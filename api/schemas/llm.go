package schemas

import "context"

// ModelTier allows for selecting a large language model based on a preference
// for speed versus advanced capabilities.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Cheaper, faster model. Used by the critic.
	TierPowerful ModelTier = "powerful" // The main decision model.
)

// GenerationOptions tunes a single completion.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
}

// GenerationRequest encapsulates a complete request to the completion port.
// Adapters that only accept one prompt string concatenate SystemPrompt and
// UserPrompt with a blank line between them.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// CombinedPrompt joins the system and user prompts into the single string
// expected by single-prompt adapters.
func (r GenerationRequest) CombinedPrompt() string {
	switch {
	case r.SystemPrompt == "":
		return r.UserPrompt
	case r.UserPrompt == "":
		return r.SystemPrompt
	}
	return r.SystemPrompt + "\n\n" + r.UserPrompt
}

// LLMClient is the completion port. The per-call timeout is carried by ctx.
type LLMClient interface {
	// Generate produces a text completion based on the provided request.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}
