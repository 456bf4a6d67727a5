package ai

import (
	"errors"
	"time"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
)

// LLMConfig represents the chat model configuration.
type LLMConfig struct {
	Model       string // gpt-4o-mini
	APIKey      string
	BaseURL     string  // any OpenAI-compatible endpoint
	MaxTokens   int     // default: 1024
	Temperature float32 // default: 0.3
	MaxRetries  int     // default: 3
	Timeout     time.Duration
}

// NewConfigFromProfile creates the LLM config from profile.
// It returns nil when no API key is configured.
func NewConfigFromProfile(p *profile.Profile) *LLMConfig {
	if !p.IsAIEnabled() {
		return nil
	}
	return &LLMConfig{
		Model:       p.AIModel,
		APIKey:      p.AIAPIKey,
		BaseURL:     p.AIBaseURL,
		MaxTokens:   1024,
		Temperature: 0.3,
		MaxRetries:  3,
		Timeout:     60 * time.Second,
	}
}

// Validate validates the configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	if c.Model == "" {
		return errors.New("LLM model is required")
	}
	return nil
}
