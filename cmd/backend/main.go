package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	httphandlers "bemore/internal/handlers/http"
	"bemore/internal/infrastructure/middleware"
	"bemore/internal/infrastructure/monitoring"
	repositories "bemore/internal/infrastructure/repositories"
	channels "bemore/internal/infrastructure/signal"
	"bemore/pkg/config"
	"bemore/pkg/logger"
	"bemore/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, cfgPath, err := config.LoadFirst(
		"configs/backend.yaml",
		"./configs/config.yaml",
		"/etc/bemore/backend.yaml",
		"config.yaml",
	)

	level := "info"
	if cfg != nil && cfg.Logging.Level != "" {
		level = cfg.Logging.Level
	}
	zapLogger := logger.New(level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	if err != nil {
		log.Fatalw("Failed to load configuration", "error", err)
	}
	if cfgPath != "" {
		log.Infow("Loaded configuration", "path", cfgPath)
	}

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "bemore-backend",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("Failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := monitoring.NewPrometheusCollector()

	repoFactory := repositories.NewRepositoryFactory(cfg, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.ChannelTokenTTL)
	sessionStore := services.NewCachedSessionStore(repoFactory.CreateSessionStore(), cfg.Session.CacheTTL)
	if cached, ok := sessionStore.(*services.CachedSessionStore); ok {
		defer cached.Close()
	}
	registry := services.NewSessionRegistry(sessionStore, authService, cfg.Backend.PublicWSURL, log)

	channelServer := channels.NewChannelServer(registry, channels.ServerConfig{
		PingInterval:   cfg.Channels.PingInterval,
		PongTimeout:    cfg.Channels.PongTimeout,
		WriteTimeout:   cfg.Channels.WriteTimeout,
		MaxMessageSize: cfg.Channels.MaxMessageSizeBytes,
	}, log)
	registry.OnStatusChange(channelServer.PublishStatus)

	channelServer.Handle(domain.ChannelLandmarks, func(ctx context.Context, sessionID domain.SessionID, data []byte) (interface{}, error) {
		collector.RecordMessage(domain.ChannelLandmarks, "in")
		return nil, nil
	})
	// There is no recognizer here: transcripts a client sends are echoed back
	// as stt results so that captions can be exercised end to end.
	channelServer.Handle(domain.ChannelVoice, func(ctx context.Context, sessionID domain.SessionID, data []byte) (interface{}, error) {
		collector.RecordMessage(domain.ChannelVoice, "in")
		var msg struct {
			Type  string `json:"type"`
			Text  string `json:"text"`
			Final bool   `json:"final"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "transcript" {
			return nil, nil
		}
		collector.RecordMessage(domain.ChannelVoice, "out")
		return map[string]interface{}{"type": "stt", "text": msg.Text, "final": msg.Final}, nil
	})

	checker := monitoring.NewHealthChecker()
	checker.AddStorageCheck(repoFactory, cfg.Monitoring.HealthInterval, 2*time.Second)
	checker.StartBackgroundChecks(ctx)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.AccessLogMiddleware(logger.NewContextLogger(zapLogger), collector),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	httphandlers.NewBackendHandler(registry, channelServer, authService, collector, log).SetupRoutes(router)

	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = collector.Handler()
		log.Info("Prometheus metrics enabled")
	}
	httphandlers.NewHealthHandler(checker, metricsHandler).SetupRoutes(router)

	// WriteTimeout stays unset: channel connections are long-lived.
	srv := &http.Server{
		Addr:        cfg.Backend.Address,
		Handler:     router,
		ReadTimeout: cfg.Backend.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting BeMore backend",
			"address", cfg.Backend.Address,
			"public_ws_url", cfg.Backend.PublicWSURL,
			"redis", repoFactory.UsingRedis(),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down BeMore backend...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Backend.ShutdownTimeout)
	defer shutdownCancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	log.Infow("Open channel connections", "count", channelServer.ConnectionCount())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	cancel()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracing", "error", err)
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("BeMore backend stopped")
}
