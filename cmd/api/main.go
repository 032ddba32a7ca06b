package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/verdictlabs/verdict-api/internal/config"
	"github.com/verdictlabs/verdict-api/internal/consensus"
	"github.com/verdictlabs/verdict-api/internal/database"
	"github.com/verdictlabs/verdict-api/internal/handler"
	"github.com/verdictlabs/verdict-api/internal/middleware"
	"github.com/verdictlabs/verdict-api/internal/observability"
	"github.com/verdictlabs/verdict-api/internal/router"
	"github.com/verdictlabs/verdict-api/internal/service"
	"github.com/verdictlabs/verdict-api/pkg/agent"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	observability.RegisterMetrics()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	agents := buildAgents(cfg, logger)
	names := make([]string, 0, len(agents))
	for _, a := range agents {
		names = append(names, a.Descriptor().Name)
	}
	logger.Info().Strs("agents", names).Msg("agent manifest assembled")

	classifier := consensus.NewVocabularyClassifier(cfg.FuzzyThreshold)
	fallback := consensus.NewFallbackCache(cfg, classifier)
	orchestrator := consensus.NewOrchestrator(agents, classifier, fallback, redisClient, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionService := service.NewSessionService(cfg.HistoryCap, redisClient, natsConn, "verdict:sessions", logger)
	sessionService.Start(ctx)

	delivery := service.NewLogReportDelivery(cfg.ReportSender, logger)
	validationService := service.NewValidationService(sessionService, orchestrator, delivery, validate, logger)

	sessionHandler := handler.NewSessionHandler(sessionService, validationService, validate, logger)
	adminHandler := handler.NewAdminHandler(sessionService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		SessionHandler: sessionHandler,
		AdminHandler:   adminHandler,
		Sessions:       sessionService,
		AgentNames:     names,
		StartedAt:      time.Now().UTC(),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

// buildAgents assembles the validation panel: remote analysts for every
// configured provider plus the local heuristic scanner, which keeps the
// service answering when no API keys are present.
func buildAgents(cfg config.Config, logger zerolog.Logger) []agent.Agent {
	var agents []agent.Agent

	if cfg.OpenAIAPIKey != "" {
		a, err := agent.NewChatAgent(agent.ChatConfig{
			Name:        "openai-analyst",
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Weight:      1.0,
			Specialties: []string{"general", "security"},
			Timeout:     cfg.AgentTimeout,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to create openai agent: %v", err)
		}
		agents = append(agents, a)
	}

	if cfg.DeepSeekAPIKey != "" {
		a, err := agent.NewChatAgent(agent.ChatConfig{
			Name:        "deepseek-analyst",
			APIKey:      cfg.DeepSeekAPIKey,
			BaseURL:     cfg.DeepSeekBaseURL,
			Model:       cfg.DeepSeekModel,
			Weight:      0.9,
			Specialties: []string{"crypto", "algorithms"},
			Timeout:     cfg.AgentTimeout,
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("failed to create deepseek agent: %v", err)
		}
		agents = append(agents, a)
	}

	agents = append(agents, agent.NewHeuristicAgent(0.4))

	return agents
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
