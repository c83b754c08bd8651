package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bemore/internal/core/domain"
	"bemore/internal/core/services"
	httphandlers "bemore/internal/handlers/http"
	"bemore/internal/infrastructure/apiclient"
	"bemore/internal/infrastructure/middleware"
	"bemore/internal/infrastructure/monitoring"
	"bemore/internal/infrastructure/render"
	repositories "bemore/internal/infrastructure/repositories"
	channels "bemore/internal/infrastructure/signal"
	"bemore/pkg/circuitbreaker"
	"bemore/pkg/config"
	"bemore/pkg/logger"
	"bemore/pkg/retry"
	"bemore/pkg/tracing"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, cfgPath, err := config.LoadFirst(
		"configs/agent.yaml",
		"./configs/config.yaml",
		"/etc/bemore/agent.yaml",
		"config.yaml",
	)

	zapLogger := logger.New(levelOrDefault(cfg))
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
		ServiceName: "bemore-agent",
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
	sessionRepo := repoFactory.CreateSessionRepository()

	instanceLock := repoFactory.InstanceLock(30 * time.Second)
	if instanceLock != nil {
		acquired, err := instanceLock.TryLock(ctx)
		if err != nil {
			log.Fatalw("Failed to acquire agent lock", "error", err)
		}
		if !acquired {
			log.Fatalw("Another agent is running with the same id", "agent_id", cfg.Agent.ID, "lock", instanceLock.Key())
		}
	}

	api := apiclient.New(apiclient.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Retry: retry.Config{
			Enabled:      cfg.API.Retry.Enabled,
			MaxAttempts:  cfg.API.Retry.MaxAttempts,
			InitialDelay: cfg.API.Retry.InitialDelay,
			MaxDelay:     cfg.API.Retry.MaxDelay,
			Multiplier:   2.0,
			Jitter:       true,
		},
		CircuitBreaker: circuitbreaker.Config{
			FailureThreshold:    cfg.API.CircuitBreaker.FailureThreshold,
			SuccessThreshold:    cfg.API.CircuitBreaker.SuccessThreshold,
			Timeout:             cfg.API.CircuitBreaker.Timeout,
			MaxRequestsHalfOpen: 1,
		},
	}, log)

	hub := channels.NewHub(channels.ClientConfig{
		PingInterval:         cfg.Channels.PingInterval,
		PongTimeout:          cfg.Channels.PongTimeout,
		WriteTimeout:         cfg.Channels.WriteTimeout,
		ReconnectDelay:       cfg.Channels.ReconnectDelay,
		MaxReconnectAttempts: cfg.Channels.MaxReconnectAttempts,
		MaxMessageSize:       cfg.Channels.MaxMessageSizeBytes,
	}, collector, log)

	sessions := services.NewSessionService(api, hub, sessionRepo, log)
	feedback := services.NewFeedbackForm(api, log)
	subtitles := services.NewSubtitleService(cfg.Session.SubtitleHistory, log)
	aggregator := services.NewStatusAggregator()
	sessions.OnEnded(func(session *domain.SessionData) {
		feedback.Open(session.SessionID)
	})

	hub.Handle(domain.ChannelVoice, func(ctx context.Context, data []byte) {
		subtitles.HandleMessage(data)
	})
	hub.Handle(domain.ChannelSession, channels.StatusHandler(sessions.ApplyStatus))
	hub.OnChange(func(wsConnected bool, statuses map[domain.Channel]domain.ChannelStatus) {
		status := aggregator.Aggregate(wsConnected, statuses)
		collector.RecordOverallStatus(status)
		log.Debugw("Connection status", "status", status.Status, "text", status.StatusText)
	})

	idle := services.NewIdleMonitor(cfg.Session.IdleTimeout, log)
	idle.OnIdle(func() {
		log.Infow("Client idle", "timeout", cfg.Session.IdleTimeout.String())
	})
	idle.Start()
	defer idle.Stop()

	// Overlay renderer
	canvas := render.NewCanvas(cfg.Renderer.Width, cfg.Renderer.Height)
	worker := render.NewWorker(render.NewRenderer(), cfg.Renderer.MailboxSize, collector, log)
	go worker.Run(ctx)
	if err := worker.Send(ctx, render.InitMessage(canvas)); err != nil {
		log.Fatalw("Failed to bind overlay canvas", "error", err)
	}
	codec := render.NewCodec()
	codec.Register("overlay", canvas)

	forwarder := channels.NewLandmarkForwarder(worker, hub, cfg.Renderer.MaxFPS, sessions.Session, log)
	forwarder.OnDrop(collector.FrameDropped)

	// Health checks
	checker := monitoring.NewHealthChecker()
	checker.AddStorageCheck(repoFactory, cfg.Monitoring.HealthInterval, 2*time.Second)
	checker.AddBreakerCheck(api.Breaker(), cfg.Monitoring.HealthInterval)
	checker.AddRenderCheck(worker.Done(), cfg.Monitoring.HealthInterval)
	checker.StartBackgroundChecks(ctx)

	if candidate, err := sessions.ResumeCandidate(ctx); err != nil {
		log.Warnw("Could not look up a session to resume", "error", err)
	} else if candidate != nil {
		log.Infow("Found a session from an earlier run; POST /api/session/resume to continue it",
			"session_id", candidate.SessionID,
			"started_at", candidate.StartedAt,
		)
	}

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

	httphandlers.NewAgentHandler(httphandlers.AgentDeps{
		Sessions:    sessions,
		Feedback:    feedback,
		Subtitles:   subtitles,
		Idle:        idle,
		Aggregator:  aggregator,
		Status:      hub,
		Forwarder:   forwarder,
		Overlay:     canvas,
		Codec:       codec,
		Mailbox:     worker,
		UserID:      domain.UserID(cfg.API.UserID),
		CounselorID: domain.CounselorID(cfg.API.CounselorID),
	}, log).SetupRoutes(router)

	var metricsHandler http.Handler
	if cfg.Monitoring.PrometheusEnabled {
		metricsHandler = collector.Handler()
		log.Info("Prometheus metrics enabled")
	}
	httphandlers.NewHealthHandler(checker, metricsHandler).SetupRoutes(router)

	srv := &http.Server{
		Addr:         cfg.Agent.Address,
		Handler:      router,
		ReadTimeout:  cfg.Agent.ReadTimeout,
		WriteTimeout: cfg.Agent.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("Starting BeMore agent",
			"address", cfg.Agent.Address,
			"agent_id", cfg.Agent.ID,
			"backend", cfg.API.BaseURL,
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

	log.Info("Shutting down BeMore agent...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	// The active session stays persisted so the next run can offer to resume it.
	hub.Disconnect()
	cancel()
	<-worker.Done()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error shutting down tracing", "error", err)
	}
	if instanceLock != nil {
		if err := instanceLock.Unlock(shutdownCtx); err != nil {
			log.Warnw("Error releasing agent lock", "error", err)
		}
	}
	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("BeMore agent stopped")
}

func levelOrDefault(cfg *config.Config) string {
	if cfg == nil || cfg.Logging.Level == "" {
		return "info"
	}
	return cfg.Logging.Level
}
