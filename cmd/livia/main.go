package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	livia "github.com/lucastzuka/livia"
	"github.com/lucastzuka/livia/frontend/slack"
	"github.com/lucastzuka/livia/internal/config"
	"github.com/lucastzuka/livia/observer"
	"github.com/lucastzuka/livia/provider/openai"
)

func main() {
	// 1. Load .env + config
	_ = godotenv.Load()
	cfg := config.Load(os.Getenv("LIVIA_CONFIG"))
	if cfg.Slack.BotToken == "" || cfg.Slack.AppToken == "" {
		log.Fatal("SLACK_BOT_TOKEN and SLACK_APP_TOKEN are required")
	}
	if cfg.OpenAI.APIKey == "" {
		log.Fatal("OPENAI_API_KEY is required")
	}

	level := slog.LevelInfo
	if cfg.Engine.Development {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	// 2. Observer (no-op without OTEL_EXPORTER_OTLP_ENDPOINT)
	pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
	for model, p := range cfg.Observer.Pricing {
		pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
	}
	inst, obsShutdown, err := observer.Init(context.Background(), pricing)
	if err != nil {
		log.Fatalf("observer init failed: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := obsShutdown(ctx); err != nil {
			logger.Warn("observer shutdown", "error", err)
		}
	}()

	// 3. Provider + frontend
	openaiOpts := []openai.Option{openai.WithLogger(logger)}
	if cfg.OpenAI.BaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	if cfg.OpenAI.TranscribeModel != "" {
		openaiOpts = append(openaiOpts, openai.WithTranscribeModel(cfg.OpenAI.TranscribeModel))
	}
	llm := openai.New(cfg.OpenAI.APIKey, openaiOpts...)

	client := slack.New(cfg.Slack.BotToken,
		slack.WithAppToken(cfg.Slack.AppToken),
		slack.WithLogger(logger),
	)

	var provider livia.Provider = observer.WrapProvider(llm, inst)
	var frontend livia.Frontend = observer.WrapFrontend(client, inst)

	// 4. Identity check before accepting traffic
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botUserID, err := frontend.AuthTest(ctx)
	if err != nil {
		log.Fatalf("slack auth test failed: %v", err)
	}
	logger.Info("authenticated", "bot_user_id", botUserID, "development", cfg.Engine.Development)

	// 5. Engine
	governor := livia.NewGovernor(livia.WithGovernorLogger(logger))
	if err := inst.ObserveGovernor(governor, livia.PoolLLM, livia.PoolIntegration); err != nil {
		logger.Warn("governor metrics unavailable", "error", err)
	}

	engine := livia.NewEngine(livia.EngineConfig{
		BotUserID:       botUserID,
		AllowedChannels: cfg.Engine.AllowedChannels,
		AllowedUsers:    cfg.Engine.AllowedUsers,
		Development:     cfg.Engine.Development,
		HandlerLimit:    cfg.Engine.HandlerLimit,
		Models: livia.Models{
			Text:     cfg.Engine.TextModel,
			Vision:   cfg.Engine.VisionModel,
			Reasoner: cfg.Engine.ReasonerModel,
		},
		MCPGatewayURL:  cfg.MCP.GatewayURL,
		MCPCredentials: cfg.MCP.Credentials,
	}, frontend, provider, llm, llm,
		livia.WithLogger(logger),
		livia.WithTracer(observer.NewTracer()),
		livia.WithGovernor(governor),
	)

	// 6. Socket Mode loop until signal
	socket := slack.NewSocket(client, engine.HandleEvent, slack.WithSocketLogger(logger))
	runErr := socket.Run(ctx)
	stop()

	// 7. Grace period for in-flight handlers
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := engine.Drain(drainCtx); err != nil {
		logger.Warn("shutdown with handlers still running", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Fatalf("socket mode: %v", runErr)
	}
	logger.Info("shutdown complete")
}
