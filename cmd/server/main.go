// Command server runs the library HTTP API.
//
// @title                      Library API
// @version                    1.0
// @description                Catalog, reviews, ratings and accounts for the digital library.
// @BasePath                   /
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
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

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/tbourn/go-library-backend/docs"
	"github.com/tbourn/go-library-backend/internal/auth"
	"github.com/tbourn/go-library-backend/internal/config"
	"github.com/tbourn/go-library-backend/internal/events"
	httpapi "github.com/tbourn/go-library-backend/internal/http"
	"github.com/tbourn/go-library-backend/internal/http/handlers"
	"github.com/tbourn/go-library-backend/internal/lock"
	"github.com/tbourn/go-library-backend/internal/media"
	"github.com/tbourn/go-library-backend/internal/mongostore"
	"github.com/tbourn/go-library-backend/internal/observability"
	"github.com/tbourn/go-library-backend/internal/repo"
	"github.com/tbourn/go-library-backend/internal/services"
	"github.com/tbourn/go-library-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	startupTimeout  = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg := config.MustLoad()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = log.Logger.WithContext(ctx)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

func setupLogging(cfg config.Config) {
	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", cfg.OTEL.ServiceName).Logger()
	if cfg.LogPretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
}

func run(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	st, err := openStore(startCtx, cfg.Store)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.Close(sctx); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()

	locker, closeLocker, err := newLocker(startCtx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	pub := newPublisher(cfg.Kafka)
	defer func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("close event publisher")
		}
	}()

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.JWTTTL, cfg.Auth.AdminJWTTTL)
	ratings := services.NewRatingService(st, locker, pub)
	ratings.CASRetries = cfg.Rating.CASRetries
	ratings.IdempotencyTTL = cfg.IdempotencyTTL
	books := services.NewBookService(st)

	if p := cfg.Store.CatalogSeedPath; p != "" {
		n, err := books.Seed(startCtx, p)
		if err != nil {
			log.Warn().Err(err).Str("path", p).Msg("catalog seed failed")
		} else if n > 0 {
			log.Info().Int("books", n).Str("path", p).Msg("catalog seeded")
		}
	}
	if err := books.Reindex(startCtx); err != nil {
		log.Warn().Err(err).Msg("initial search index build failed")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		Services: handlers.Services{
			Reviews: services.NewReviewService(st, ratings, pub),
			Ratings: ratings,
			Books:   books,
			Users:   services.NewUserService(st, tokens, auth.NewHasher(cfg.Auth.BcryptCost), media.NewProcessor(cfg.Media.ProfileImageMaxDim)),
			Admin:   services.NewAdminService(st),
		},
		Store:  st,
		Tokens: tokens,
	}, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("store", cfg.Store.Driver).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	return srv.Shutdown(sctx)
}

func openStore(ctx context.Context, sc config.StoreConfig) (services.Store, error) {
	switch sc.Driver {
	case config.DriverMongo:
		s, err := mongostore.Open(ctx, sc.MongoURI, sc.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		return s, nil
	case config.DriverSQLite, config.DriverPostgres:
		target := sc.DBPath
		if sc.Driver == config.DriverPostgres {
			target = sc.PostgresDSN
		}
		db, err := repo.Open(sc.Driver, target)
		if err != nil {
			return nil, err
		}
		if err := repo.AutoMigrate(db); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return repo.NewStore(db), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// newLocker returns a Redis locker when REDIS_ADDR is set, an in-process one
// otherwise.
func newLocker(ctx context.Context, cfg config.Config) (lock.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocal(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	return lock.NewRedis(client, lock.RedisConfig{TTL: cfg.Rating.LockTTL}), closeFn, nil
}

func newPublisher(kc config.KafkaConfig) events.Publisher {
	if len(kc.Brokers) == 0 {
		return events.Nop{}
	}
	return events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:     kc.Brokers,
		TopicPrefix: kc.TopicPrefix,
		Timeout:     kc.Timeout,
	})
}
