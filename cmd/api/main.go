// Package main is the entry point for the webhook server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/sales-agent-webhooks/internal/brain"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/config"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/handler"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/llm"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/middleware"
	natsclient "github.com/capitalize-ai/sales-agent-webhooks/internal/nats"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/reply"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/service"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/store"
	"github.com/capitalize-ai/sales-agent-webhooks/internal/telegram"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/logger"
	"github.com/capitalize-ai/sales-agent-webhooks/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting webhook server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "sales-agent-webhooks", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the entity store
	st, err := openStore(cfg, log)
	if err != nil {
		log.Error("failed to open store", zap.Error(err))
		os.Exit(1)
	}
	defer st.Close()

	// Connect to NATS when event publishing is enabled
	var (
		natsClient *natsclient.Client
		events     service.EventPublisher = service.NopPublisher{}
	)
	if cfg.NATSEnabled {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure stream", zap.Error(err))
			os.Exit(1)
		}
		events = streamManager
	}

	// Agent-Brain client, used for replies and channel registration when configured
	var brainClient *brain.Client
	if cfg.AgentBrainURL != "" {
		brainClient, err = brain.New(brain.Config{
			BaseURL: cfg.AgentBrainURL,
			APIKey:  cfg.AgentBrainAPIKey,
			Timeout: cfg.AgentBrainTimeout,
		})
		if err != nil {
			log.Error("failed to create Agent-Brain client", zap.Error(err))
			os.Exit(1)
		}
	}

	responder, err := newResponder(cfg, brainClient)
	if err != nil {
		log.Error("failed to configure replies", zap.Error(err))
		os.Exit(1)
	}
	log.Info("reply synthesis configured", zap.String("responder", responder.Name()))

	// Initialize services
	var brainRegistrar service.ChannelRegistrar
	if brainClient != nil {
		brainRegistrar = brainClient
	}
	conversationSvc := service.NewConversationService(st, events, log)
	channelSvc := service.NewChannelService(st, telegram.NewRegistrar(cfg.TelegramAPIServer, nil), brainRegistrar, cfg.PublicBaseURL, log)
	processor := service.NewInboundProcessor(
		service.NewAuthorizer(st, log),
		conversationSvc,
		reply.NewSynthesizer(responder, cfg.ReplyTimeout, log),
		log,
	)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(st, natsClient)
	webhookHandler := handler.NewWebhookHandler(processor, cfg.RedactInternalErrors, log)
	channelHandler := handler.NewChannelHandler(channelSvc, cfg.RedactInternalErrors, log)
	conversationHandler := handler.NewConversationHandler(conversationSvc, cfg.RedactInternalErrors, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// Inbound webhooks, authorized by the per-channel secret
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.WebhookRateLimit(cfg.WebhookRateLimitRequests, cfg.RateLimitWindow))

		r.Post("/phone", webhookHandler.Phone)
		r.Post("/website", webhookHandler.Website)
		r.Post("/telegram", webhookHandler.Telegram)
	})

	// Dashboard API routes with authentication
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Post("/channels", channelHandler.Connect)
			r.Get("/channels", channelHandler.List)
			r.Delete("/channels/{id}", channelHandler.Delete)

			r.Get("/conversations", conversationHandler.List)
		})

		r.Route("/conversations/{id}", func(r chi.Router) {
			r.Get("/", conversationHandler.Get)
			r.Put("/status", conversationHandler.UpdateStatus)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

func openStore(cfg *config.Config, log *logger.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return store.NewMemoryStore(), nil
	case config.StoreSQLite:
		sqlite, err := store.OpenSQLite(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return sqlite, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// newResponder picks the reply source for REPLY_MODE.
func newResponder(cfg *config.Config, brainClient *brain.Client) (reply.Responder, error) {
	switch cfg.ReplyMode {
	case config.ReplyCanned:
		return reply.Canned{}, nil
	case config.ReplyBrain:
		if brainClient == nil {
			return nil, fmt.Errorf("REPLY_MODE=brain requires AGENT_BRAIN_URL")
		}
		return brainClient, nil
	case config.ReplyLLM:
		provider := llm.Provider(cfg.DefaultLLM)
		apiKey := cfg.AnthropicAPIKey
		if provider == llm.ProviderOpenAI {
			apiKey = cfg.OpenAIAPIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("REPLY_MODE=llm requires an API key for %s", provider)
		}
		client, err := llm.NewClient(provider, apiKey)
		if err != nil {
			return nil, err
		}
		return reply.NewLLMResponder(client, cfg.LLMModel, cfg.LLMSystemPrompt), nil
	default:
		return nil, fmt.Errorf("unknown reply mode %q", cfg.ReplyMode)
	}
}
