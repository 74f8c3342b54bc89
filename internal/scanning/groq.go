package scanning

import (
	"context"
	"fmt"
	"strings"
)

// groqPlaceholderKey is the value shipped in the sample .env file
const groqPlaceholderKey = "your_groq_api_key_here"

// Groq represents the Groq chat API. Its models are text-only, so it can
// never read an image; the orchestrator redirects to a vision provider.
type Groq struct {
	apiKey string
	model  string
}

// NewGroq creates a new Groq provider. Empty or placeholder keys count as unset.
func NewGroq(apiKey string, modelName string) (*Groq, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" || apiKey == groqPlaceholderKey {
		return nil, fmt.Errorf("%w: GROQ_API_KEY environment variable not set", ErrConfigurationMissing)
	}
	if modelName == "" {
		modelName = "qwen-2.5-32b"
	}
	return &Groq{apiKey: apiKey, model: modelName}, nil
}

// Name returns the provider name
func (g *Groq) Name() string {
	return "groq"
}

// Vision reports image support
func (g *Groq) Vision() bool {
	return false
}

// Invoke always fails: Groq models don't accept image input
func (g *Groq) Invoke(ctx context.Context, img Image, prompt string) (string, error) {
	return "", fmt.Errorf("%w: groq model %s doesn't support vision/image inputs", ErrProtocolMismatch, g.model)
}

// Close is a no-op
func (g *Groq) Close() error {
	return nil
}
