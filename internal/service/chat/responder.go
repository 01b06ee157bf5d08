package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"chatstream/internal/config"
	"chatstream/internal/metrics"
	"chatstream/internal/models"
	"chatstream/internal/service/ai"
)

// MessageStore persists chat turns.
type MessageStore interface {
	CreateMessage(ctx context.Context, role models.Role, content string, status models.MessageStatus) (*models.Message, error)
	UpdateMessage(ctx context.Context, id int64, content string, status models.MessageStatus) error
}

// ConfigSource returns the configuration in effect for the next call.
type ConfigSource interface {
	ActiveModelConfiguration(ctx context.Context) (models.ModelConfiguration, error)
}

// Completer opens a completion stream for a single prompt.
type Completer interface {
	Complete(ctx context.Context, p ai.CallParams, prompt string) (*schema.StreamReader[*schema.Message], error)
}

// EmitFunc delivers one frame to the client. A non-nil error means the client is gone.
type EmitFunc func(models.MessageView) error

// Responder turns one user prompt into an echoed user frame followed by a growing bot reply.
type Responder struct {
	store     MessageStore
	configs   ConfigSource
	completer Completer
	providers map[string]config.ProviderConfig
	logger    zerolog.Logger
}

func NewResponder(store MessageStore, configs ConfigSource, completer Completer, providers map[string]config.ProviderConfig, logger zerolog.Logger) *Responder {
	return &Responder{
		store:     store,
		configs:   configs,
		completer: completer,
		providers: providers,
		logger:    logger,
	}
}

// Handle stores userText, emits it, then streams the active model's reply through emit.
// Each non-empty fragment is persisted before the frame carrying it is emitted.
func (r *Responder) Handle(ctx context.Context, userText string, emit EmitFunc) error {
	if strings.TrimSpace(userText) == "" {
		return ErrValidation
	}
	// Frames are JSON, which cannot carry invalid UTF-8; store what will be echoed.
	userText = strings.ToValidUTF8(userText, "\uFFFD")
	log := r.log(ctx)

	userMsg, err := r.store.CreateMessage(ctx, models.RoleUser, userText, models.StatusComplete)
	if err != nil {
		return &StorageError{Err: err}
	}
	if err := emit(userMsg.View()); err != nil {
		return ErrClientGone
	}
	metrics.RecordFrame(string(models.RoleUser))

	cfg, err := r.configs.ActiveModelConfiguration(ctx)
	if err != nil {
		return &ConfigurationError{Err: err}
	}
	params, err := ai.ResolveCallParams(cfg, r.providers)
	if err != nil {
		return &ConfigurationError{Err: err}
	}

	start := time.Now()
	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	status, err := r.stream(ctx, params, userText, emit, start)
	metrics.RecordStream(params.Provider, string(status), params.Streaming, time.Since(start).Seconds())
	if err != nil {
		log.Warn().Err(err).
			Str("provider", params.Provider).
			Str("model", params.Model).
			Str("status", string(status)).
			Msg("chat stream ended early")
	}
	return err
}

func (r *Responder) stream(ctx context.Context, params ai.CallParams, prompt string, emit EmitFunc, start time.Time) (models.MessageStatus, error) {
	sr, err := r.completer.Complete(ctx, params, prompt)
	if err != nil {
		if errors.Is(err, ai.ErrUnknownProvider) {
			return models.StatusFailed, &ConfigurationError{Err: err}
		}
		metrics.RecordProviderError(params.Provider, "open")
		return models.StatusFailed, &ProviderStreamError{Provider: params.Provider, Err: err}
	}
	defer sr.Close()

	// Writes after this point must land even if the client has left.
	persist := context.WithoutCancel(ctx)
	var (
		bot   *models.Message
		reply string
	)
	settle := func(status models.MessageStatus) {
		if bot == nil {
			return
		}
		if err := r.store.UpdateMessage(persist, bot.ID, reply, status); err != nil {
			r.log(ctx).Error().Err(err).Int64("message_id", bot.ID).Str("status", string(status)).Msg("persist bot reply")
		}
	}

	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				settle(models.StatusInterrupted)
				return models.StatusInterrupted, ErrClientGone
			}
			metrics.RecordProviderError(params.Provider, "recv")
			settle(models.StatusFailed)
			return models.StatusFailed, &ProviderStreamError{Provider: params.Provider, Err: err}
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}
		next := reply + strings.ToValidUTF8(chunk.Content, "\uFFFD")

		if bot == nil {
			bot, err = r.store.CreateMessage(persist, models.RoleBot, next, models.StatusStreaming)
			if err != nil {
				return models.StatusFailed, &StorageError{Err: err}
			}
			metrics.RecordFirstFragment(params.Provider, time.Since(start).Seconds())
		} else if err := r.store.UpdateMessage(persist, bot.ID, next, models.StatusStreaming); err != nil {
			// The row keeps the last content that reached the client.
			settle(models.StatusFailed)
			return models.StatusFailed, &StorageError{Err: err}
		}
		reply = next

		if err := emit(bot.View().WithContent(reply)); err != nil {
			settle(models.StatusInterrupted)
			return models.StatusInterrupted, ErrClientGone
		}
		metrics.RecordFrame(string(models.RoleBot))
	}

	if bot == nil {
		metrics.RecordProviderError(params.Provider, "empty")
		return models.StatusFailed, &ProviderStreamError{Provider: params.Provider, Err: ErrEmptyCompletion}
	}
	if err := r.store.UpdateMessage(persist, bot.ID, reply, models.StatusComplete); err != nil {
		return models.StatusFailed, &StorageError{Err: err}
	}
	return models.StatusComplete, nil
}

// log prefers the request-scoped logger carried by ctx.
func (r *Responder) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &r.logger
}
