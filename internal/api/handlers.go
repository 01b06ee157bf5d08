package api

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"chatstream/internal/auth"
	"chatstream/internal/middleware"
	"chatstream/internal/models"
	"chatstream/internal/ratelimit"
	"chatstream/internal/service/assistant"
	"chatstream/internal/service/chat"
	"chatstream/internal/web"
)

const (
	streamStatusTrailer = "X-Stream-Status"
	streamErrorTrailer  = "X-Stream-Error"
)

// Handler wires HTTP routes to the message store and the chat responder.
type Handler struct {
	assistant     *assistant.Service
	responder     *chat.Responder
	auth          *auth.Service
	limiter       ratelimit.Limiter
	streamTimeout time.Duration
	logger        zerolog.Logger
}

// NewHandler constructs a Handler instance. A nil limiter disables throttling.
func NewHandler(service *assistant.Service, responder *chat.Responder, authService *auth.Service, limiter ratelimit.Limiter, streamTimeout time.Duration, logger zerolog.Logger) *Handler {
	if streamTimeout <= 0 {
		streamTimeout = 2 * time.Minute
	}
	return &Handler{
		assistant:     service,
		responder:     responder,
		auth:          authService,
		limiter:       limiter,
		streamTimeout: streamTimeout,
		logger:        logger,
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.staticFile("index.html", "text/html; charset=utf-8"))
	router.GET("/static/app.js", h.staticFile("app.js", "text/javascript; charset=utf-8"))
	router.GET("/healthz", h.healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.GET("/messages", h.listMessages)
	postHandlers := []gin.HandlerFunc{h.createMessage}
	if h.limiter != nil {
		postHandlers = append([]gin.HandlerFunc{middleware.Throttle(h.limiter, h.logger)}, postHandlers...)
	}
	api.POST("/messages", postHandlers...)

	if !h.auth.Enabled() {
		h.logger.Info().Msg("admin token not set, admin api disabled")
		return
	}
	admin := router.Group("/wall-garden/api")
	admin.Use(h.auth.Middleware())
	admin.GET("/model-configurations", h.listConfigurations)
	admin.POST("/model-configurations", h.createConfiguration)
	admin.GET("/model-configurations/:id", h.getConfiguration)
	admin.PUT("/model-configurations/:id", h.updateConfiguration)
	admin.DELETE("/model-configurations/:id", h.deleteConfiguration)
	admin.GET("/messages", h.listMessagesWithStatus)
	admin.DELETE("/messages/:id", h.deleteMessage)
}

func (h *Handler) staticFile(name, contentType string) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fs.ReadFile(web.Static, name)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.Data(http.StatusOK, contentType, data)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listMessages(c *gin.Context) {
	messages, err := h.assistant.ListMessages(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	views := make([]models.MessageView, 0, len(messages))
	for _, msg := range messages {
		views = append(views, msg.View())
	}
	c.JSON(http.StatusOK, views)
}

type messageForm struct {
	Content string `form:"content" json:"content" binding:"required"`
}

// createMessage echoes the stored prompt as the first frame and streams the reply after it.
// Failures after the first frame surface in the X-Stream-* trailers.
func (h *Handler) createMessage(c *gin.Context) {
	var form messageForm
	if err := c.ShouldBind(&form); err != nil || strings.TrimSpace(form.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	if _, ok := c.Writer.(http.Flusher); !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	streamCtx, cancel := context.WithTimeout(c.Request.Context(), h.streamTimeout)
	defer cancel()

	frames := chat.NewFrameWriter(c.Writer)
	emit := func(v models.MessageView) error {
		if frames.Frames() == 0 {
			startStream(c)
		}
		return frames.WriteFrame(v)
	}
	err := h.responder.Handle(streamCtx, form.Content, emit)

	if frames.Frames() == 0 {
		switch {
		case err == nil, errors.Is(err, chat.ErrClientGone):
		case errors.Is(err, chat.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	header := c.Writer.Header()
	switch {
	case err == nil:
		header.Set(streamStatusTrailer, string(models.StatusComplete))
	case errors.Is(err, chat.ErrClientGone):
		header.Set(streamStatusTrailer, string(models.StatusInterrupted))
	default:
		header.Set(streamStatusTrailer, string(models.StatusFailed))
		header.Set(streamErrorTrailer, chat.Kind(err))
	}
	if err != nil {
		_ = c.Error(err)
	}
}

// startStream sets the streaming headers. Trailers must be declared before the body starts.
func startStream(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set("Trailer", streamStatusTrailer+", "+streamErrorTrailer)
	c.Status(http.StatusOK)
}

// admin: model configurations
type configurationRequest struct {
	Provider         string  `json:"provider" binding:"required"`
	Model            string  `json:"model" binding:"required"`
	StreamingEnabled *bool   `json:"streaming_enabled"`
	EndpointOverride string  `json:"endpoint_override"`
	APIKey           *string `json:"api_key"`
	WebSearch        bool    `json:"web_search"`
	IsActive         bool    `json:"is_active"`
}

func (r configurationRequest) input() assistant.ModelConfigurationInput {
	streaming := true
	if r.StreamingEnabled != nil {
		streaming = *r.StreamingEnabled
	}
	return assistant.ModelConfigurationInput{
		Provider:         r.Provider,
		Model:            r.Model,
		StreamingEnabled: streaming,
		EndpointOverride: r.EndpointOverride,
		APIKey:           r.APIKey,
		WebSearch:        r.WebSearch,
		IsActive:         r.IsActive,
	}
}

func (h *Handler) listConfigurations(c *gin.Context) {
	configs, err := h.assistant.ListModelConfigurations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (h *Handler) createConfiguration(c *gin.Context) {
	var req configurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cfg, err := h.assistant.CreateModelConfiguration(c.Request.Context(), req.input())
	if err != nil {
		c.JSON(configurationErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (h *Handler) getConfiguration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	cfg, err := h.assistant.GetModelConfiguration(c.Request.Context(), id)
	if err != nil {
		c.JSON(configurationErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) updateConfiguration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req configurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	cfg, err := h.assistant.UpdateModelConfiguration(c.Request.Context(), id, req.input())
	if err != nil {
		c.JSON(configurationErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (h *Handler) deleteConfiguration(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteModelConfiguration(c.Request.Context(), id); err != nil {
		c.JSON(configurationErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func configurationErrorStatus(err error) int {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrMultipleActiveConfiguration):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrInvalidConfiguration), errors.Is(err, assistant.ErrCipherUnavailable):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// admin: messages
func (h *Handler) listMessagesWithStatus(c *gin.Context) {
	messages, err := h.assistant.ListMessages(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *Handler) deleteMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.assistant.DeleteMessage(c.Request.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}
