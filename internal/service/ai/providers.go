package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

const claudeMaxTokens = 3000

func newOpenAIChatModel(ctx context.Context, p CallParams) (model.BaseChatModel, error) {
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: p.BaseURL,
		Model:   p.Model,
		APIKey:  p.APIKey,
	})
}

func newClaudeChatModel(ctx context.Context, p CallParams) (model.BaseChatModel, error) {
	var baseURL *string
	if p.BaseURL != "" {
		baseURL = &p.BaseURL
	}
	return claude.NewChatModel(ctx, &claude.Config{
		APIKey:    p.APIKey,
		Model:     p.Model,
		BaseURL:   baseURL,
		MaxTokens: claudeMaxTokens,
	})
}

func newGeminiChatModel(ctx context.Context, p CallParams) (model.BaseChatModel, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: p.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return gemini.NewChatModel(ctx, &gemini.Config{
		Client: client,
		Model:  p.Model,
	})
}
