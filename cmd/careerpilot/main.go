package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/careerpilot/careerpilot/internal/agent"
	"github.com/careerpilot/careerpilot/internal/api"
	"github.com/careerpilot/careerpilot/internal/config"
	"github.com/careerpilot/careerpilot/internal/orchestrator"
	"github.com/careerpilot/careerpilot/internal/provider"
	"github.com/careerpilot/careerpilot/internal/store"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("starting CareerPilot...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/careerpilot.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("config loaded", zap.String("path", cfgPath))

	// Completion backends
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		provCfg := provider.ProviderConfig{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey,
			Model: pc.Model, Extra: pc.Extra,
		}
		switch pc.Type {
		case "gemini":
			router.Register(provider.NewGeminiProvider(provCfg, logger))
		case "openai":
			router.Register(provider.NewOpenAIProvider(provCfg, logger))
		case "anthropic":
			router.Register(provider.NewAnthropicProvider(provCfg, logger))
		default:
			logger.Warn("unknown provider type", zap.String("id", pc.ID), zap.String("type", pc.Type))
		}
	}

	// Run history (optional)
	var runs *store.Store
	if cfg.Database.Postgres.DSN != "" {
		s, pgErr := store.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without run history", zap.Error(pgErr))
		} else {
			if mErr := s.Migrate(context.Background(), "migrations"); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			runs = s
			defer s.Close()
		}
	}

	// Workflow event stream (optional)
	var events *orchestrator.EventBus
	if cfg.Database.Redis.URL != "" {
		eb, rErr := orchestrator.NewEventBus(cfg.Database.Redis.URL, logger)
		if rErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(rErr))
		} else {
			events = eb
			defer eb.Close()
		}
	}

	// Tools, agents, orchestrator
	registry := agent.NewToolRegistry()
	agent.RegisterBuiltinTools(registry)
	if runs != nil {
		agent.RegisterRunHistoryTool(registry, runs)
	}
	factory := agent.NewFactory(router, registry, cfg.Planner.Model, logger)
	orch := orchestrator.New(factory, router, cfg.Planner.Model, events, logger)

	handler := api.NewHandler(orch, factory, runs, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
