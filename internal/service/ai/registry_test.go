package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
)

type scriptedModel struct {
	fragments []string
	prompts   []string
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.record(input)
	return schema.AssistantMessage(strings.Join(m.fragments, ""), nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.record(input)
	msgs := make([]*schema.Message, 0, len(m.fragments))
	for _, f := range m.fragments {
		msgs = append(msgs, schema.AssistantMessage(f, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (m *scriptedModel) record(input []*schema.Message) {
	for _, msg := range input {
		m.prompts = append(m.prompts, string(msg.Role)+":"+msg.Content)
	}
}

func collect(t *testing.T, sr *schema.StreamReader[*schema.Message]) []string {
	t.Helper()
	defer sr.Close()
	var out []string
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		out = append(out, msg.Content)
	}
}

func TestRegistryStreamsRegisteredProvider(t *testing.T) {
	fake := &scriptedModel{fragments: []string{"Hello", " from", " the bot!"}}
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.Register("Fake", func(context.Context, CallParams) (model.BaseChatModel, error) { return fake, nil })

	sr, err := reg.Complete(context.Background(), CallParams{Provider: "fake", Model: "test", Streaming: true}, "Hello from test!")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := collect(t, sr)
	if strings.Join(got, "|") != "Hello| from| the bot!" {
		t.Fatalf("unexpected fragments: %q", got)
	}
	if len(fake.prompts) != 1 || fake.prompts[0] != "user:Hello from test!" {
		t.Fatalf("expected a single user prompt, got %q", fake.prompts)
	}
}

func TestRegistryNonStreamingYieldsOneFragment(t *testing.T) {
	fake := &scriptedModel{fragments: []string{"Hello", " world"}}
	reg := NewRegistry(zerolog.Nop(), nil)
	reg.Register("fake", func(context.Context, CallParams) (model.BaseChatModel, error) { return fake, nil })

	sr, err := reg.Complete(context.Background(), CallParams{Provider: "fake", Model: "test"}, "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := collect(t, sr)
	if len(got) != 1 || got[0] != "Hello world" {
		t.Fatalf("expected one whole reply, got %q", got)
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry(zerolog.Nop(), nil)
	if _, err := reg.Complete(context.Background(), CallParams{Provider: "mystery"}, "hi"); !errors.Is(err, ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
}

func TestRegistryWebSearchSkippedWithoutToolCalling(t *testing.T) {
	info := &schema.ToolInfo{Name: "web_search", Desc: "test search"}
	search := utils.NewTool(info, func(context.Context, *webSearchParams) (string, error) { return "result", nil })
	fake := &scriptedModel{fragments: []string{"plain"}}
	reg := NewRegistry(zerolog.Nop(), search)
	reg.Register("fake", func(context.Context, CallParams) (model.BaseChatModel, error) { return fake, nil })

	sr, err := reg.Complete(context.Background(), CallParams{Provider: "fake", Model: "m", Streaming: true, WebSearch: true}, "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got := collect(t, sr); len(got) != 1 || got[0] != "plain" {
		t.Fatalf("unexpected fragments: %q", got)
	}
}

func TestOllamaAdapterStreamsChunks(t *testing.T) {
	var seen api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&seen); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, part := range []string{"Hel", "", "lo"} {
			enc.Encode(api.ChatResponse{Model: seen.Model, Message: api.Message{Role: "assistant", Content: part}})
		}
		enc.Encode(api.ChatResponse{Model: seen.Model, Done: true})
	}))
	defer srv.Close()

	reg := NewRegistry(zerolog.Nop(), nil)
	sr, err := reg.Complete(context.Background(), CallParams{Provider: ProviderOllama, Model: "llama3.1", Streaming: true, BaseURL: srv.URL}, "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	got := strings.Join(collect(t, sr), "")
	if got != "Hello" {
		t.Fatalf("want %q got %q", "Hello", got)
	}
	if seen.Model != "llama3.1" || len(seen.Messages) != 1 || seen.Messages[0].Content != "hi" {
		t.Fatalf("unexpected request: %+v", seen)
	}
	if seen.Stream == nil || !*seen.Stream {
		t.Fatalf("expected streaming request")
	}
}

func TestOllamaAdapterReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	reg := NewRegistry(zerolog.Nop(), nil)
	sr, err := reg.Complete(context.Background(), CallParams{Provider: ProviderOllama, Model: "missing", Streaming: true, BaseURL: srv.URL}, "hi")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	defer sr.Close()
	for {
		_, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			t.Fatalf("expected stream error, got clean end")
		}
		if err != nil {
			return
		}
	}
}

func TestOllamaAdapterRejectsBadURL(t *testing.T) {
	if _, err := newOllamaChatModel(context.Background(), CallParams{BaseURL: "ftp://host"}); err == nil {
		t.Fatalf("expected scheme error")
	}
}
