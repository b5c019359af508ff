package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nocliffcapital/alithos/internal/alerts"
	"github.com/nocliffcapital/alithos/internal/config"
	"github.com/nocliffcapital/alithos/internal/llm"
	"github.com/nocliffcapital/alithos/internal/logger"
	"github.com/nocliffcapital/alithos/internal/notify"
	"github.com/nocliffcapital/alithos/internal/polymarket"
	"github.com/nocliffcapital/alithos/internal/research"
	"github.com/nocliffcapital/alithos/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	store, err := storage.New(
		cfg.Storage.MaxTriggerRecords,
		cfg.Storage.DBPath,
	)
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	polyClient := polymarket.NewClient(
		cfg.Polymarket.GammaAPIURL,
		cfg.Polymarket.CLOBAPIURL,
		cfg.Polymarket.Timeout,
		polymarket.ClientConfig{
			MaxRetries:        cfg.Polymarket.MaxRetries,
			RetryDelayBase:    cfg.Polymarket.RetryDelayBase,
			RequestsPerSecond: cfg.Polymarket.RequestsPerSecond,
			Burst:             cfg.Polymarket.Burst,
		},
	)

	var telegramClient *notify.TelegramClient
	if cfg.Notify.Telegram.Enabled {
		telegramClient, err = notify.NewTelegramClient(
			cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID,
			cfg.Notify.Telegram.MaxRetries, cfg.Notify.Telegram.RetryDelayBase)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	var emailSender alerts.EmailSender
	if cfg.Notify.Email.Enabled {
		emailSender = notify.NewSMTPSender(
			cfg.Notify.Email.SMTPHost, cfg.Notify.Email.SMTPPort,
			cfg.Notify.Email.From, cfg.Notify.Email.Username, cfg.Notify.Email.Password)
		logger.Info("Email notifications enabled via %s", cfg.Notify.Email.SMTPHost)
	}

	var push alerts.PushSink
	if telegramClient != nil {
		push = telegramClient
	}
	dispatcher := alerts.NewDispatcher(store, push, emailSender, nil, alerts.WebhookConfig{
		MaxRetries: cfg.Alerts.WebhookMaxRetries,
		RetryDelay: cfg.Alerts.WebhookRetryDelay,
		Timeout:    cfg.Alerts.WebhookTimeout,
	})

	evaluator := alerts.NewEvaluator(polyClient)
	scheduler := alerts.NewScheduler(evaluator, dispatcher, store, cfg.Alerts.TickInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persisted, err := store.ListActiveAlerts(ctx)
	if err != nil {
		logger.Fatal("Failed to load persisted alerts: %v", err)
	}
	for _, a := range persisted {
		scheduler.Add(a)
	}
	logger.Info("Loaded %d active alert(s) into the scheduler", len(persisted))

	// The source provider is an external search capability; without one the
	// pipeline analyzes from market data and general knowledge alone.
	llmClient := llm.NewClient(
		cfg.Research.APIBaseURL, cfg.Research.APIKey, cfg.Research.Model, cfg.Research.Timeout)
	pipeline := research.NewPipeline(
		polyClient, nil, research.NewAnalyzer(llmClient), store,
		cfg.Research.Timeout, cfg.Research.MaxSources)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if telegramClient != nil {
		telegramClient.AttachCommands(scheduler, pipeline)
		telegramClient.ListenForCommands(ctx)
	}

	logger.Info("Alert engine ready (tick interval: %v, %d alert(s) registered)",
		cfg.Alerts.TickInterval, len(persisted))

	<-sigChan
	logger.Info("Shutdown signal received, cleaning up...")
	scheduler.Shutdown()
	cancel()
	logger.Info("Service stopped")
}
