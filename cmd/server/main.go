package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hray3182/GeoNudge/internal/ai"
	"github.com/hray3182/GeoNudge/internal/api"
	"github.com/hray3182/GeoNudge/internal/config"
	"github.com/hray3182/GeoNudge/internal/database"
	"github.com/hray3182/GeoNudge/internal/intake"
	"github.com/hray3182/GeoNudge/internal/models"
	"github.com/hray3182/GeoNudge/internal/notify"
	"github.com/hray3182/GeoNudge/internal/offline"
	"github.com/hray3182/GeoNudge/internal/push"
	"github.com/hray3182/GeoNudge/internal/registry"
	"github.com/hray3182/GeoNudge/internal/repository"
	"github.com/hray3182/GeoNudge/internal/suppress"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.DatabaseURI == "" {
		logger.Fatal().Msg("DATABASE_URI is required")
	}
	if cfg.PushWebhookURL == "" {
		logger.Fatal().Msg("PUSH_WEBHOOK_URL is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	logger.Info().Msg("connected to database")

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database migrations completed")

	// Repositories
	taskRepo := repository.NewTaskRepository(db)
	geofenceRepo := repository.NewGeofenceRepository(db)
	eventRepo := repository.NewEventRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	snoozeRepo := repository.NewSnoozeRepository(db)
	muteRepo := repository.NewMuteRepository(db)
	markRepo := repository.NewMarkRepository(db)
	offlineRepo := repository.NewOfflineRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Optional AI copy polishing
	var aiClient *ai.Client
	if cfg.AIAPIKey != "" {
		aiClient = ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		logger.Info().Str("model", cfg.AIModel).Msg("ai copy polishing enabled")
	}

	// Push transports: webhook to the APNs/FCM collaborator, Telegram as an
	// optional secondary ops channel.
	var dispatcher push.Dispatcher = push.NewWebhook(cfg.PushWebhookURL, cfg.PushTimeout, logger)
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := push.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create telegram dispatcher")
		}
		dispatcher = push.NewMulti(logger, dispatcher, tg)
		logger.Info().Msg("telegram ops channel enabled")
	}

	// Registry with the OS geofence cap
	reg := registry.New(geofenceRepo, cfg.GeofenceCap, logger)
	reg.OnChange(func(userID uuid.UUID, active []models.Geofence) {
		logger.Info().
			Str("user_id", userID.String()).
			Int("active", len(active)).
			Msg("geofence set changed, client should re-fetch")
	})

	// Suppression windows
	suppressSvc := suppress.New(snoozeRepo, muteRepo, cfg.TomorrowHour, cfg.Location(), logger)

	// Dispatch scheduler
	scheduler := notify.NewScheduler(notifRepo, deviceRepo, suppressSvc, dispatcher, notify.SchedulerConfig{
		CheckInterval: cfg.DispatchEvery,
		ClaimLease:    cfg.ClaimLease,
		MaxAttempts:   cfg.MaxAttempts,
		BackoffSteps:  cfg.BackoffSteps,
	}, logger)

	// Composer feeding the scheduler
	composer := notify.NewComposer(notifRepo, eventRepo, aiClient, scheduler, notify.ComposerConfig{
		BundleWindow:     cfg.BundleWindow,
		BundleRadiusM:    cfg.BundleRadiusM,
		PostArrivalDwell: cfg.PostArrival,
	}, logger)

	// Intake filter in front of the composer
	filter := intake.New(geofenceRepo, taskRepo, eventRepo, markRepo, suppressSvc, composer, intake.Config{
		ApproachCooldown: cfg.ApproachCooldown,
		DedupWindow:      cfg.DedupWindow,
		MinConfidence:    cfg.MinConfidence,
	}, logger)

	// Action/task service
	service := notify.NewService(notifRepo, taskRepo, geofenceRepo, suppressSvc, reg, logger)

	// Offline replay queue
	queue := offline.NewQueue(offlineRepo, filter, offline.Config{
		ReplayInterval: cfg.OfflineEvery,
		ClaimLease:     cfg.ClaimLease,
		MaxRetries:     cfg.OfflineMaxRetries,
	}, logger)

	// Maintenance sweeper
	sweeper := notify.NewSweeper(suppressSvc, reg, geofenceRepo, eventRepo, notifRepo, notify.SweeperConfig{
		SweepInterval:   cfg.SweepEvery,
		RecheckInterval: cfg.RecheckEvery,
		PurgeInterval:   24 * time.Hour,
		RetentionDays:   cfg.RetentionDays,
	}, logger)

	go scheduler.Start(ctx)
	go queue.Start(ctx)
	go sweeper.Start(ctx)

	handler := api.NewHandler(filter, queue, service, geofenceRepo, notifRepo, deviceRepo, statsRepo, logger)
	server := api.NewServer(cfg.ListenAddr, handler, logger)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown failed")
		}
		cancel()
	}()

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
