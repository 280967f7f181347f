package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/telebot.v3"

	"booking_notification_bot/internal/app"
	"booking_notification_bot/internal/infra/config"
	idb "booking_notification_bot/internal/infra/database"
	"booking_notification_bot/internal/infra/logger"
	"booking_notification_bot/internal/infra/metrics"
	"booking_notification_bot/internal/infra/scheduler"
	"booking_notification_bot/internal/infra/telegram"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "bot",
		Short:         "Booking notification bot: watches bookings and posts changes to Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runService(cmd.Context())
		},
	}
	root.AddCommand(newDigestCommand())
	return root
}

// services holds everything both commands build from configuration.
type services struct {
	cfg        *config.AppConfig
	log        *logrus.Logger
	db         *sql.DB
	bot        *telebot.Bot
	resolver   *app.Resolver
	dispatcher *app.Dispatcher
	repo       *idb.PostgresBookingRepository
	digest     *app.DigestService
}

func bootstrap(ctx context.Context, polling func(*config.AppConfig) bool) (*services, error) {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not configured yet; this is the only place stderr is written directly.
		fmt.Fprintf(os.Stderr, "FATAL: could not load application configuration: %v\n", err)
		return nil, err
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	mainLogger := log.WithField("component", "main")
	mainLogger.WithFields(logrus.Fields{
		"log_level":      cfg.LogLevel,
		"environment":    cfg.Environment,
		"chats":          len(cfg.ChatIDs),
		"check_interval": cfg.CheckInterval.String(),
		"timezone":       cfg.Timezone.String(),
	}).Info("Configuration loaded")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Error("Could not connect to database")
		return nil, err
	}
	mainLogger.Info("Database connection established successfully")

	retrier := idb.NewRetrier(db, cfg.DBRetryAttempts, cfg.DBRetryBaseDelay, log.WithField("component", "db_retry"))
	repo := idb.NewPostgresBookingRepository(db, retrier)

	botLogger := log.WithField("component", "telebot")
	bot, err := telegram.NewBot(cfg.TelegramToken, polling(cfg), func(err error, c telebot.Context) {
		logCtx := botLogger.WithError(err)
		if c != nil && c.Sender() != nil && c.Chat() != nil {
			logCtx = logCtx.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
		}
		logCtx.Error("Telegram bot error")
	})
	if err != nil {
		db.Close()
		mainLogger.WithError(err).Error("Could not create Telegram bot")
		return nil, err
	}

	resolver := app.NewResolver(repo, repo, cfg.ListingBaseURL, cfg.Timezone, log.WithField("component", "enrichment"))
	dispatcher := app.NewDispatcher(telegram.NewTelebotAdapter(bot), cfg.ChatIDs, cfg.SendRatePerSec, log.WithField("component", "dispatcher"))
	digest := app.NewDigestService(repo, resolver, dispatcher, log.WithField("component", "digest"))

	return &services{
		cfg:        cfg,
		log:        log,
		db:         db,
		bot:        bot,
		resolver:   resolver,
		dispatcher: dispatcher,
		repo:       repo,
		digest:     digest,
	}, nil
}

func runService(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx, func(cfg *config.AppConfig) bool { return cfg.BotCommandsEnabled })
	if err != nil {
		return err
	}
	defer rt.db.Close()
	mainLogger := rt.log.WithField("component", "main")

	pollService := app.NewPollService(rt.repo, rt.resolver, rt.dispatcher, rt.cfg.ChangedRowsLimit, rt.log.WithField("component", "poll"))

	notifScheduler := scheduler.NewNotificationScheduler(
		pollService,
		rt.digest,
		rt.log.WithField("component", "scheduler"),
		rt.cfg.Timezone,
		rt.cfg.CheckInterval,
		rt.cfg.DigestCronSpec,
	)
	if err := notifScheduler.Start(ctx); err != nil {
		mainLogger.WithError(err).Error("Could not start scheduler")
		return err
	}

	go metrics.Serve(ctx, rt.cfg.MetricsAddr, rt.log.WithField("component", "metrics"))

	if rt.cfg.BotCommandsEnabled {
		handlers := telegram.NewCommandHandlers(ctx, rt.cfg, pollService, rt.dispatcher, rt.digest, rt.log.WithField("component", "telegram"))
		telegram.RegisterBotCommands(rt.bot, handlers)
		// Start bot in a goroutine so it doesn't block graceful shutdown handling
		go rt.bot.Start()
		mainLogger.Info("Bot command handlers registered, long polling started")
	}

	mainLogger.Info("Application setup complete. Watching for booking changes")
	<-ctx.Done()

	mainLogger.Info("Shutting down application...")
	if rt.cfg.BotCommandsEnabled {
		rt.bot.Stop()
	}
	notifScheduler.Stop()
	mainLogger.Info("Application shut down gracefully")
	return nil
}
