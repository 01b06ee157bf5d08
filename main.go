package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"chatstream/internal/api"
	"chatstream/internal/auth"
	"chatstream/internal/config"
	"chatstream/internal/logger"
	"chatstream/internal/middleware"
	"chatstream/internal/ratelimit"
	"chatstream/internal/redis"
	"chatstream/internal/service/ai"
	"chatstream/internal/service/assistant"
	"chatstream/internal/service/chat"
	"chatstream/internal/storage"
)

func main() {
	boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load(os.Getenv("CHATSTREAM_CONFIG"))
	if err != nil {
		boot.Fatal().Err(err).Msg("load config")
	}
	log, err := logger.New(cfg.BasicConfig.LogLevel, cfg.BasicConfig.LogFormat)
	if err != nil {
		boot.Fatal().Err(err).Msg("init logger")
	}

	dbType := cfg.BasicConfig.Database
	log.Info().Str("db", dbType).Msg("opening database")
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	// Create necessary tables: messages, model_configurations
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	assistantService, err := assistant.NewService(db)
	if err != nil {
		log.Fatal().Err(err).Msg("init assistant service")
	}

	rate, err := ratelimit.ParseRate(cfg.BasicConfig.ThrottleRate)
	if err != nil {
		log.Fatal().Err(err).Msg("parse throttle rate")
	}
	var limiter ratelimit.Limiter = ratelimit.NewWindow(rate)
	if redis.Enabled(cfg) {
		rdb, err := redis.NewRedisClient(cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create redis client")
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedis(rdb, "chatstream:throttle:", rate)
		log.Info().Str("rate", rate.String()).Msg("throttling through redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	streamTimeout := time.Duration(cfg.BasicConfig.StreamTimeoutSeconds) * time.Second
	assistantService.StartStaleStreamSweeper(ctx, assistant.DefaultStaleStreamInterval, 2*streamTimeout, log)

	search := ai.NewWebSearchTool(ctx, cfg.Search, log)
	registry := ai.NewRegistry(log, search)
	responder := chat.NewResponder(assistantService, assistantService, registry, cfg.Providers, log)

	handlers := api.NewHandler(assistantService, responder, auth.NewService(cfg.BasicConfig.AdminToken), limiter, streamTimeout, log)

	if log.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(log), middleware.Logging(log))
	handlers.RegisterRoutes(router)

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), streamTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
