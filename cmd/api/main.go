package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"asklytics/internal/config"
	"asklytics/internal/db"
	"asklytics/internal/db/migrations"
	"asklytics/internal/handlers"
	"asklytics/internal/metrics"
	"asklytics/internal/repository"
	"asklytics/internal/routes"
	"asklytics/internal/services"
)

// @title Password Reset API
// @version 1.0
// @description Issues and redeems password reset secrets over email links and SMS one-time passwords.
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg)
	ctx := context.Background()

	if err := db.CreateDatabaseIfNotExists(ctx, cfg.DatabaseURL, &logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to ensure database exists")
	}

	database, err := db.New(ctx, cfg.DatabaseURL, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := migrations.RunMigrations(ctx, database.DB, &logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	metrics.MustRegister()

	mail, err := newEmailSender(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build email transport")
	}
	notifier := services.NewNotifier(mail, newSMSSender(cfg, &logger), cfg.AppBaseURL, cfg.Reset.EmailTTL, cfg.Reset.MobileTTL)

	resets := repository.NewResetRepository(database.DB)
	issuance := services.NewIssuanceService(
		repository.NewUserRepository(database.DB),
		resets,
		notifier,
		services.NewCryptoSecretGenerator(),
		services.IssuanceConfig{
			EmailTTL:        cfg.Reset.EmailTTL,
			MobileTTL:       cfg.Reset.MobileTTL,
			StoreTimeout:    cfg.Reset.StoreTimeout,
			DeliveryTimeout: cfg.Reset.DeliveryTimeout,
		},
		&logger,
	)
	if cfg.Reset.IssueCooldown > 0 {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		issuance.SetThrottle(services.NewRedisIssuanceThrottle(rdb, cfg.Reset.IssueCooldown))
		logger.Info().Dur("cooldown", cfg.Reset.IssueCooldown).Msg("reset issuance cooldown enabled")
	}

	redemption := services.NewRedemptionService(resets, services.RedemptionConfig{
		MinPasswordLength: cfg.Reset.MinPasswordLength,
		BcryptCost:        cfg.Reset.BcryptCost,
		StoreTimeout:      cfg.Reset.StoreTimeout,
	}, &logger)

	resetHandler := handlers.NewPasswordResetHandler(issuance, redemption, cfg.Reset.MinPasswordLength, &logger)
	router := routes.SetupRoutes(database.DB, cfg, resetHandler, &logger)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           routes.MetricsRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listener starting")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics listener failed")
		}
	}()

	go func() {
		logger.Info().Str("port", cfg.Port).Str("environment", cfg.Environment).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := issuance.Wait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("reset deliveries still in flight at exit")
	}
	if d, ok := mail.(interface{ Wait(context.Context) error }); ok {
		if err := d.Wait(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("smtp sends still open at exit")
		}
	}
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info().Msg("server exiting")
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	if cfg.IsProduction() {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()
}

func newEmailSender(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (services.EmailSender, error) {
	switch cfg.Mail.Transport {
	case config.MailTransportSMTP:
		return services.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From), nil
	case config.MailTransportS3:
		client, err := config.NewS3Client(ctx, cfg.AWS)
		if err != nil {
			return nil, err
		}
		return services.NewS3MailDropSender(client, cfg.MailDrop.Bucket, cfg.MailDrop.Prefix, cfg.MailDrop.From), nil
	default:
		logger.Warn().Msg("MAIL_TRANSPORT=log: reset links are written to the debug log")
		return services.NewLogEmailSender(logger), nil
	}
}

func newSMSSender(cfg *config.Config, logger *zerolog.Logger) services.SMSSender {
	if cfg.SMS.Transport == config.SMSTransportHTTP {
		return services.NewHTTPSMSClient(cfg.SMS.GatewayURL, cfg.SMS.APIKey, cfg.SMS.SenderID, cfg.SMS.CountryCode)
	}
	logger.Warn().Msg("SMS_TRANSPORT=log: OTPs are written to the debug log")
	return services.NewLogSMSSender(logger)
}
