package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"matchmaking-service/archive"
	"matchmaking-service/cache"
	"matchmaking-service/config"
	"matchmaking-service/events"
	"matchmaking-service/handlers"
	"matchmaking-service/matchmaking"
	"matchmaking-service/middleware"
	"matchmaking-service/rating"
	"matchmaking-service/services"
	"matchmaking-service/store"
	"matchmaking-service/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("matchmaking service stopped")
	}
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if cfg.Development() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Str("service", "matchmaking").Logger()
	log.Logger = logger
	return logger
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(db); err != nil {
			logger.Error().Err(err).Msg("failed to close database")
		}
	}()

	tickets := store.NewTicketStore(db, cfg.LockTimeout)
	players := store.NewPlayerStore(db)
	contests := store.NewContestStore(db, rating.Elo{K: cfg.EloK})

	var profiles matchmaking.ProfileStore = players
	var invalidator services.ProfileInvalidator
	if cfg.RedisEnabled() {
		rdb, err := cache.Dial(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, profile cache disabled")
		} else {
			defer rdb.Close()
			profileCache := cache.NewProfileCache(rdb, players, cfg.ProfileCacheTTL, logger)
			profiles, invalidator = profileCache, profileCache
		}
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPEnabled() {
		amqpPublisher := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	contestService := services.NewContestService(contests, invalidator, publisher, logger)
	engine := matchmaking.NewEngine(tickets, profiles, cfg.Matchmaking(),
		matchmaking.WithScorer(matchmaking.RatingGapScorer{Band: cfg.RatingBand}),
		matchmaking.WithLogger(logger),
		matchmaking.WithMatchHook(contestService.PublishCreated),
	)
	matchmakingService := services.NewMatchmakingService(ctx, engine, cfg.StreamBuffer, cfg.StreamHeartbeatPeriod, logger)
	playerService := services.NewPlayerService(players, cfg.LeaderboardLimit)

	clock := clockwork.NewRealClock()
	scheduler, err := workers.NewScheduler(clock, logger)
	if err != nil {
		return err
	}
	sweeper := workers.NewSweeper(tickets, cfg.Timeout, cfg.SweepGrace, clock, logger)
	if err := scheduler.Every("sweep-stale-tickets", time.Minute, sweeper.Run); err != nil {
		return err
	}
	if cfg.R2Enabled() {
		client, err := archive.NewR2Client(ctx, cfg.CloudflareAccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret)
		if err != nil {
			return err
		}
		archiver := workers.NewArchiver(tickets, archive.New(client, cfg.R2BucketName, cfg.R2ArchivePrefix),
			cfg.ArchiveRetention, cfg.ArchiveBatchSize, clock, logger)
		if err := scheduler.Every("archive-closed-tickets", time.Hour, archiver.Run); err != nil {
			return err
		}
	} else {
		logger.Info().Msg("R2 not configured, closed ticket archiving disabled")
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("failed to stop workers")
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:      "matchmaking",
		ErrorHandler: services.ErrorHandler(logger),
	})
	app.Use(recover.New())
	app.Use(middleware.RequestLogger(logger))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Origins(), ","),
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles, Cache-Control",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Get("/api/health", services.Health)
	app.Use(middleware.GatewayAuth(cfg.GameServiceToken, logger))

	handlers.SetupMatchRoutes(app, matchmakingService, contestService)
	handlers.SetupPlayerRoutes(app, playerService)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- app.Listen(":" + cfg.Port)
	}()
	logger.Info().Str("port", cfg.Port).Msg("server running")

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down server")
	return app.ShutdownWithTimeout(cfg.ShutdownGracePeriod)
}
