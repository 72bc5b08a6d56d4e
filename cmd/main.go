package main

import (
	"accord/backend/internal/aibridge"
	"accord/backend/internal/analysis"
	"accord/backend/internal/api/handler"
	"accord/backend/internal/chathub"
	"accord/backend/internal/config"
	"accord/backend/internal/localization"
	"accord/backend/internal/logging"
	"accord/backend/internal/storage"
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupDependencies(cfg *config.Config, log zerolog.Logger) (*gorm.DB, *redis.Client) {
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect PostgreSQL")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("failed to connect Redis")
	}

	if err := storage.NewStorageService(db).Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	log.Info().Msg("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	cfg, warnings, err := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	for _, w := range warnings {
		log.Warn().Msg(w)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Str("addr", cfg.HTTPAddr).Str("ai_url", cfg.AI.URL).Msg("starting Accord relay")

	db, rdb := setupDependencies(cfg, log)

	store := storage.NewCachedStorage(storage.NewStorageService(db), rdb, cfg.Relay.AnalysisCacheTTL, logging.Component(log, "cache"))
	assistant := analysis.NewService(store, aibridge.New(aibridge.Config{URL: cfg.AI.URL, Timeout: cfg.AI.Timeout}), cfg.Relay)

	loc, err := localization.Default()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load translations")
	}

	hubLog := logging.Component(log, "chathub")
	registry := chathub.NewRegistry()
	dispatcher := chathub.NewDispatcher(registry, hubLog)
	pipeline := chathub.NewPipeline(registry, dispatcher, store, assistant, hubLog)
	pipeline.SetTypingRecorder(storage.NewTypingStore(rdb, cfg.Relay.TypingTTL))
	pipeline.SetTranslator(loc)

	hub := chathub.NewManagerService(pipeline, hubLog)
	dispatcher.OnDispatchFailure = hub.Evict
	go hub.Run()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), logging.GinLogger(logging.Component(log, "http")))
	h := handler.NewHandler(hub, store, loc, cfg.JWTSecret, cfg.Relay.SendBuffer, logging.Component(log, "api"))
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return server.Shutdown(ctx)
			},
			// Running AI tasks still need the database and Redis.
			"relay": func(ctx context.Context) error {
				err := hub.Shutdown(ctx)
				if cerr := rdb.Close(); cerr != nil {
					err = errors.Join(err, cerr)
				}
				if sqlDB, derr := db.DB(); derr == nil {
					err = errors.Join(err, sqlDB.Close())
				}
				return err
			},
		},
	)

	exitCode := <-wait
	log.Info().Int("exit_code", exitCode).Msg("relay stopped")
	os.Exit(exitCode)
}
