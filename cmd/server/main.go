package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authhandler "bell-backend/internal/apps/auth/handler"
	authservice "bell-backend/internal/apps/auth/service"
	"bell-backend/internal/apps/otp/events"
	otphandler "bell-backend/internal/apps/otp/handler"
	"bell-backend/internal/apps/otp/limiter"
	otpmodels "bell-backend/internal/apps/otp/models"
	otprepository "bell-backend/internal/apps/otp/repository"
	otpservice "bell-backend/internal/apps/otp/service"
	userhandler "bell-backend/internal/apps/user/handler"
	usermodels "bell-backend/internal/apps/user/models"
	userrepository "bell-backend/internal/apps/user/repository"
	userservice "bell-backend/internal/apps/user/service"
	"bell-backend/internal/common/cache"
	"bell-backend/internal/common/config"
	"bell-backend/internal/common/cron"
	"bell-backend/internal/common/database"
	"bell-backend/internal/common/logger"
	"bell-backend/internal/common/metrics"
	"bell-backend/internal/common/middleware"
	"bell-backend/pkg/clock"
	"bell-backend/pkg/secure"
	"bell-backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	db, err := database.NewConnection(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn().Err(err).Msg("failed to close database")
		}
	}()

	migrations := []interface{}{&usermodels.User{}}
	if cfg.OTP.Store == config.BackendPostgres {
		migrations = append(migrations, &otpmodels.OTPRecord{})
	}
	if err := database.AutoMigrate(db, migrations...); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient, err = cache.NewRedisClient(ctx, cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close redis")
			}
		}()
	}

	clk := clock.New()

	otpSecret, err := secretOrRandom(cfg, "OTP_SECRET", cfg.OTP.Secret, log)
	if err != nil {
		return err
	}
	hasher, err := secure.NewHasher(otpSecret)
	if err != nil {
		return fmt.Errorf("OTP_SECRET: %w", err)
	}

	jwtSecret, err := secretOrRandom(cfg, "JWT_SECRET", cfg.JWT.Secret, log)
	if err != nil {
		return err
	}
	tokens, err := authservice.NewTokenService(jwtSecret, cfg.JWT.TTL, clk)
	if err != nil {
		return fmt.Errorf("JWT_SECRET: %w", err)
	}

	provider, err := newProvider(cfg, log)
	if err != nil {
		return err
	}

	publisher, err := newPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event publisher")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	manager := otpservice.NewManager(
		newStore(cfg, db, redisClient),
		provider,
		newLimiter(cfg, redisClient, clk),
		publisher,
		hasher,
		clk,
		metrics.NewOTPMetrics(registry),
		otpservice.Options{
			TTL:             cfg.OTP.TTL,
			MaxAttempts:     cfg.OTP.MaxAttempts,
			DispatchTimeout: cfg.OTP.DispatchTimeout,
		},
	)

	userService := userservice.NewUserService(userrepository.NewUserRepository(db))
	authService := authservice.NewAuthService(manager, userService, tokens, clk)

	if cfg.OTP.SweepInterval > 0 {
		scheduler, err := cron.NewScheduler(ctx, log)
		if err != nil {
			return err
		}
		defer func() {
			if err := scheduler.Shutdown(); err != nil {
				log.Warn().Err(err).Msg("failed to stop scheduler")
			}
		}()
		if err := registerSweep(scheduler, cfg.OTP.SweepInterval, manager, log); err != nil {
			return err
		}
	}

	// Setup Gin router
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(logger.RequestLogger(log), gin.Recovery())
	router.Use(middleware.SetupCORS(cfg.CORSAllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Server is running",
		})
	})
	router.GET("/metrics", metrics.Handler(registry))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		otphandler.RegisterOTPRoutes(v1, otphandler.NewOTPHandler(manager))
		authhandler.RegisterAuthRoutes(v1, authhandler.NewAuthHandler(authService))
		userhandler.RegisterUserRoutes(v1, userhandler.NewUserHandler(userService), middleware.RequireAuth(tokens))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("otp_store", cfg.OTP.Store).
			Str("otp_limiter", cfg.OTP.Limiter).
			Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerSweep(s gocron.Scheduler, interval time.Duration, manager *otpservice.Manager, log zerolog.Logger) error {
	_, err := cron.RegisterInterval(s, "otp-sweep", interval, func(ctx context.Context) error {
		_, err := manager.SweepExpired(logger.WithContext(ctx, log))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to schedule otp sweep: %w", err)
	}
	return nil
}

func newStore(cfg *config.Config, db *gorm.DB, client *redis.Client) otprepository.Store {
	switch cfg.OTP.Store {
	case config.BackendRedis:
		return otprepository.NewRedisStore(client)
	case config.BackendPostgres:
		return otprepository.NewOTPRepository(db)
	default:
		return otprepository.NewMemoryStore()
	}
}

func newLimiter(cfg *config.Config, client *redis.Client, clk clock.Clocker) limiter.Limiter {
	opts := limiter.Options{
		Cooldown:     cfg.OTP.SendCooldown,
		Window:       cfg.OTP.SendWindow,
		MaxPerWindow: cfg.OTP.SendMaxPerWindow,
	}
	if cfg.OTP.Limiter == config.BackendRedis {
		return limiter.NewRedisLimiter(client, opts)
	}
	return limiter.NewMemoryLimiter(opts, clk)
}

func newProvider(cfg *config.Config, log zerolog.Logger) (otpservice.OTPProvider, error) {
	// codes are only ever logged on a developer machine
	noop := otpservice.NewNoOpProvider(log, cfg.Env == utils.EnvLocal)

	sms := noop
	if cfg.OTP.SMSProvider == config.ProviderAuthKey {
		sms = otpservice.NewAuthKeyProvider(otpservice.AuthKeyConfig{
			APIKey:      cfg.AuthKey.APIKey,
			TemplateID:  cfg.AuthKey.TemplateID,
			CountryCode: cfg.AuthKey.CountryCode,
			Company:     cfg.AuthKey.Company,
			MaxRetries:  2,
		})
	}

	email := noop
	if cfg.OTP.EmailProvider == config.ProviderSMTP {
		p, err := otpservice.NewSMTPProvider(otpservice.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return nil, err
		}
		email = p
	}

	return otpservice.NewChannelRouter(map[otpmodels.Channel]otpservice.OTPProvider{
		otpmodels.ChannelSMS:   sms,
		otpmodels.ChannelEmail: email,
	}), nil
}

func newPublisher(cfg *config.Config, log zerolog.Logger) (events.Publisher, error) {
	if cfg.NATS.URL == "" {
		return events.NewNopPublisher(), nil
	}
	pub, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix,
		nats.Name("bell-backend"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return pub, nil
}

// secretOrRandom returns configured, or a throwaway random secret outside production.
// Config validation already rejects an empty secret in production.
func secretOrRandom(cfg *config.Config, name, configured string, log zerolog.Logger) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if cfg.IsProduction() {
		return "", fmt.Errorf("%s is required in production", name)
	}
	log.Warn().Str("setting", name).Msg("not set, using a random secret for this process")
	return secure.RandomSecret(32)
}
