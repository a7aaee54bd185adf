package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reminder_assistant_bot/internal/app"
	"reminder_assistant_bot/internal/infra/config"
	idb "reminder_assistant_bot/internal/infra/database"
	"reminder_assistant_bot/internal/infra/logger"
	"reminder_assistant_bot/internal/infra/scheduler"
	"reminder_assistant_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("FATAL: Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Log.WithField("component", "main")
	log.Infof("Configuration loaded. LogLevel: %s, Environment: %s", cfg.LogLevel, cfg.Environment)

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()
	log.Info("Database connection established successfully.")

	reminderRepo := idb.NewPostgresReminderRepository(db)
	userRepo := idb.NewPostgresUserRepository(db)

	profileService := app.NewProfileService(userRepo, logger.Log.WithField("component", "profile_service"), cfg.DefaultTimezone)

	core := scheduler.NewCore(logger.Log.WithField("component", "scheduler_core"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed the in-memory index from durable state before the timer loop
	// starts, so reminders that came due while the process was down fire
	// through the ordinary delivery path.
	recovery := app.NewRecoveryService(reminderRepo, core, logger.Log.WithField("component", "recovery"))
	if err := recovery.Run(ctx); err != nil {
		log.WithError(err).Fatal("Startup recovery failed")
	}
	core.Start(ctx)

	sweeper := scheduler.NewSweeper(reminderRepo, core, logger.Log.WithField("component", "sweeper"), cfg.CronSpecSweep)
	if err := sweeper.Start(); err != nil {
		log.WithError(err).Fatal("Could not start reconciliation sweep")
	}

	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Log.WithError(err).WithField("component", "telebot")
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.WithError(err).Fatal("Could not create Telegram bot")
	}

	telegramClient := telegram.NewTelebotAdapter(bot)

	delivery := app.NewDeliveryService(
		reminderRepo,
		telegramClient,
		core,
		logger.Log.WithField("component", "delivery"),
		app.DeliveryConfig{
			Workers:          cfg.DeliveryWorkers,
			RatePerSec:       cfg.DeliveryRatePerSec,
			FailureThreshold: cfg.DeliveryFailureThreshold,
			RetryDelay:       cfg.DeliveryRetryDelay,
			AdminTelegramID:  cfg.AdminTelegramID,
		},
	)
	delivery.Start(ctx)

	reminderService := app.NewReminderService(reminderRepo, profileService, core, logger.Log.WithField("component", "reminder_service"))

	telegram.RegisterReminderHandlers(ctx, bot, reminderService, profileService, logger.Log.WithField("component", "handlers"))
	log.Info("Command handlers registered.")

	go bot.Start()
	log.Info("Application setup complete. Bot is polling.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down application...")
	bot.Stop()
	sweeper.Stop()
	delivery.Stop()
	core.Stop()
	cancel()
	log.Info("Application shut down gracefully.")
}
