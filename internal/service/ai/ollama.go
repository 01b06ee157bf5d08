package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
)

var errReaderClosed = errors.New("stream reader closed")

// ollamaChatModel adapts the callback-driven ollama client to eino's pull-based stream.
type ollamaChatModel struct {
	client *api.Client
	model  string
}

func newOllamaChatModel(_ context.Context, p CallParams) (model.BaseChatModel, error) {
	base, err := url.Parse(p.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid ollama url %q: unsupported scheme", p.BaseURL)
	}
	return &ollamaChatModel{client: api.NewClient(base, http.DefaultClient), model: p.Model}, nil
}

func (m *ollamaChatModel) request(input []*schema.Message, stream bool) *api.ChatRequest {
	messages := make([]api.Message, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		messages = append(messages, api.Message{Role: string(msg.Role), Content: msg.Content})
	}
	return &api.ChatRequest{
		Model:    m.model,
		Messages: messages,
		Stream:   &stream,
	}
}

func (m *ollamaChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	var reply strings.Builder
	err := m.client.Chat(ctx, m.request(input, false), func(resp api.ChatResponse) error {
		reply.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	return schema.AssistantMessage(reply.String(), nil), nil
}

func (m *ollamaChatModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	sr, sw := schema.Pipe[*schema.Message](8)
	req := m.request(input, true)
	go func() {
		defer sw.Close()
		err := m.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			if closed := sw.Send(schema.AssistantMessage(resp.Message.Content, nil), nil); closed {
				return errReaderClosed
			}
			return nil
		})
		if err != nil && !errors.Is(err, errReaderClosed) {
			sw.Send(nil, fmt.Errorf("ollama chat: %w", err))
		}
	}()
	return sr, nil
}
