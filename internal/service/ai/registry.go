package ai

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// ChatModelFactory builds a chat model for one call.
type ChatModelFactory func(ctx context.Context, p CallParams) (model.BaseChatModel, error)

// Registry maps provider names to chat model factories and runs completions.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ChatModelFactory
	search    tool.BaseTool
	logger    zerolog.Logger
}

// NewRegistry returns a registry with the built-in providers. search may be nil.
func NewRegistry(logger zerolog.Logger, search tool.BaseTool) *Registry {
	r := &Registry{
		factories: make(map[string]ChatModelFactory),
		search:    search,
		logger:    logger,
	}
	r.Register(ProviderOpenAI, newOpenAIChatModel)
	r.Register(ProviderOpenAICompatible, newOpenAIChatModel)
	r.Register(ProviderClaude, newClaudeChatModel)
	r.Register(ProviderGemini, newGeminiChatModel)
	r.Register(ProviderOllama, newOllamaChatModel)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, factory ChatModelFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

func (r *Registry) factory(name string) (ChatModelFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// Complete sends prompt as a single user message and returns the reply as a stream.
// With streaming disabled the stream carries exactly one message.
func (r *Registry) Complete(ctx context.Context, p CallParams, prompt string) (*schema.StreamReader[*schema.Message], error) {
	factory, ok := r.factory(p.Provider)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, p.Provider)
	}
	chatModel, err := factory(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", p.Provider, err)
	}
	input := []*schema.Message{schema.UserMessage(prompt)}

	if p.WebSearch {
		agent, err := r.searchAgent(ctx, chatModel, p)
		if err != nil {
			return nil, err
		}
		if agent != nil {
			if !p.Streaming {
				msg, err := agent.Generate(ctx, input)
				if err != nil {
					return nil, err
				}
				return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
			}
			return agent.Stream(ctx, input)
		}
	}

	if !p.Streaming {
		msg, err := chatModel.Generate(ctx, input)
		if err != nil {
			return nil, err
		}
		return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
	}
	return chatModel.Stream(ctx, input)
}

func (r *Registry) searchAgent(ctx context.Context, chatModel model.BaseChatModel, p CallParams) (*react.Agent, error) {
	if r.search == nil {
		r.logger.Warn().Str("provider", p.Provider).Msg("web search requested but no search tool is available")
		return nil, nil
	}
	tcm, ok := chatModel.(model.ToolCallingChatModel)
	if !ok {
		r.logger.Warn().Str("provider", p.Provider).Msg("provider does not support tool calling, web search skipped")
		return nil, nil
	}
	agent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: tcm,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: []tool.BaseTool{r.search},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("init react agent: %w", err)
	}
	return agent, nil
}
