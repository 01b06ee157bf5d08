package ai

import (
	"errors"
	"fmt"
	"strings"

	"chatstream/internal/config"
	"chatstream/internal/models"
)

const (
	ProviderOpenAI           = "openai"
	ProviderOpenAICompatible = "openai_compatible"
	ProviderClaude           = "claude"
	ProviderGemini           = "gemini"
	ProviderOllama           = "ollama"

	DefaultOllamaURL = "http://localhost:11434"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrMissingAPIKey   = errors.New("api key not configured")
	ErrMissingModel    = errors.New("model not configured")
	ErrMissingEndpoint = errors.New("endpoint not configured")
)

// CallParams is everything a completion call needs, derived from one configuration.
type CallParams struct {
	Provider  string
	Model     string
	Streaming bool
	BaseURL   string
	APIKey    string
	WebSearch bool
}

// SelfHosted reports whether provider talks to an operator-run endpoint.
func SelfHosted(provider string) bool {
	switch provider {
	case ProviderOllama, ProviderOpenAICompatible:
		return true
	}
	return false
}

func hosted(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderClaude, ProviderGemini:
		return true
	}
	return false
}

// ResolveCallParams derives call parameters from the active configuration and the
// process-level provider settings. The endpoint override only applies to self-hosted
// providers with streaming enabled.
func ResolveCallParams(mc models.ModelConfiguration, providers map[string]config.ProviderConfig) (CallParams, error) {
	provider := strings.ToLower(strings.TrimSpace(mc.Provider))
	if provider == "" {
		return CallParams{}, fmt.Errorf("%w: empty provider", ErrUnknownProvider)
	}
	defaults := providers[provider]

	params := CallParams{
		Provider:  provider,
		Model:     strings.TrimSpace(mc.Model),
		Streaming: mc.StreamingEnabled,
		BaseURL:   defaults.BaseURL,
		APIKey:    mc.APIKey,
		WebSearch: mc.WebSearch,
	}
	if params.Model == "" {
		params.Model = defaults.Model
	}
	if params.Model == "" {
		return CallParams{}, fmt.Errorf("%w for provider %s", ErrMissingModel, provider)
	}
	if params.APIKey == "" {
		params.APIKey = defaults.APIKey
	}
	if SelfHosted(provider) && mc.StreamingEnabled && mc.EndpointOverride != "" {
		params.BaseURL = mc.EndpointOverride
	}

	switch {
	case hosted(provider) && params.APIKey == "":
		return CallParams{}, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, provider)
	case provider == ProviderOllama && params.BaseURL == "":
		params.BaseURL = DefaultOllamaURL
	case provider == ProviderOpenAICompatible && params.BaseURL == "":
		return CallParams{}, fmt.Errorf("%w for provider %s", ErrMissingEndpoint, provider)
	}
	return params, nil
}
