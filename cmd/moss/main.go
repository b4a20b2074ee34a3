package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectoinject/ectocontainer"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/moss/config"
	"github.com/Ramsey-B/moss/internal/database"
	"github.com/Ramsey-B/moss/internal/middleware"
	"github.com/Ramsey-B/moss/internal/repositories/filmdetails"
	"github.com/Ramsey-B/moss/internal/repositories/filmwork"
	"github.com/Ramsey-B/moss/internal/repositories/genre"
	"github.com/Ramsey-B/moss/internal/repositories/genrelink"
	"github.com/Ramsey-B/moss/internal/repositories/personlink"
	"github.com/Ramsey-B/moss/internal/startup"
	"github.com/Ramsey-B/moss/internal/tracing"
	"github.com/Ramsey-B/moss/internal/tracing/exporters"
	"github.com/Ramsey-B/moss/pkg/events"
	"github.com/Ramsey-B/moss/pkg/routes/health"
	"github.com/Ramsey-B/moss/pkg/routes/syncstatus"
	"github.com/Ramsey-B/moss/pkg/search"
	"github.com/Ramsey-B/moss/pkg/state"
	msync "github.com/Ramsey-B/moss/pkg/sync"
)

const version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		panic(fmt.Sprintf("failed to bind config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("invalid config: %v", err))
	}

	logger := buildLogger(cfg)
	ctx := context.Background()

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(&exporters.ConsoleExporter{}))
	otel.SetTracerProvider(tp)
	tracing.SetTracer(tp.Tracer(cfg.AppName))
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	// Postgres, the read-only source of truth
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		fatal(logger, err, "Failed to open database")
	}
	db := database.NewDatabaseInstance(sqlxDB, logger)
	db.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	db.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)
	defer db.Close()

	// Elasticsearch, the sink
	esClient, err := search.NewClient(search.Config{
		Addresses: cfg.ElasticAddresses,
		Username:  cfg.ElasticUsername,
		Password:  cfg.ElasticPassword,
	}, logger)
	if err != nil {
		fatal(logger, err, "Failed to create search client")
	}

	// Checkpoint store
	var redisClient *redis.Client
	var storage state.Storage
	if cfg.CheckpointBackend == "redis" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		storage = state.NewRedisStorage(redisClient, cfg.CheckpointRedisKey)
	} else {
		storage = state.NewJSONFileStorage(cfg.CheckpointFilePath)
	}
	st := state.NewState(storage)

	// Optional document-sync events
	var publisher msync.EventPublisher
	var kafkaProducer *events.Producer
	if cfg.KafkaEnabled {
		kafkaProducer = events.NewProducer(events.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		publisher = kafkaProducer
	}

	// Pipeline
	retryCfg := msync.RetryConfig{
		MaxAttempts: cfg.SyncRetryMaxAttempts,
		BaseDelay:   cfg.SyncRetryBaseDelay,
	}
	producer := msync.NewProducer(filmwork.NewRepository(db, logger), cfg.SyncBatchSize, retryCfg, logger)
	genreEnricher := msync.NewEnricher("genre links", genrelink.NewRepository(db, logger), cfg.SyncBatchSize, retryCfg, logger)
	personEnricher := msync.NewEnricher("person links", personlink.NewRepository(db, logger), cfg.SyncBatchSize, retryCfg, logger)
	merger := msync.NewMerger(filmdetails.NewRepository(db, logger), retryCfg, logger)
	loader := search.NewLoader(esClient, search.LoaderConfig{
		MaxAttempts: cfg.SyncRetryMaxAttempts,
		BaseDelay:   cfg.SyncRetryBaseDelay,
	}, logger)
	orchestrator := msync.NewOrchestrator(st, producer, genreEnricher, personEnricher, merger,
		genre.NewRepository(db, logger), loader, publisher, cfg.SyncBatchSize, retryCfg, logger)
	runner := msync.NewRunner(orchestrator, cfg.SyncSleepPeriod, logger)

	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		fatal(logger, err, "Failed to create DI container")
	}
	if err := ectoinject.RegisterInstance[*state.State](container, st); err != nil {
		fatal(logger, err, "Failed to register state")
	}
	if err := ectoinject.RegisterInstance[*msync.Runner](container, runner); err != nil {
		fatal(logger, err, "Failed to register runner")
	}

	checker := health.NewChecker(db, redisClient, esClient, version)
	e := buildServer(cfg, logger, container, checker)

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&dependency{
		name:  "postgres",
		start: func(ctx context.Context) error { return db.PingContext(ctx) },
	})
	boot.AddDependency(&dependency{
		name: "elasticsearch",
		start: func(ctx context.Context) error {
			if err := esClient.Ping(ctx); err != nil {
				return err
			}
			return esClient.EnsureIndices(ctx)
		},
	})
	if redisClient != nil {
		boot.AddDependency(&dependency{
			name:  "redis",
			start: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	if cfg.MigrationsEnabled {
		boot.AddDependency(&dependency{
			name:      "migrations",
			dependsOn: []string{"postgres"},
			start: func(ctx context.Context) error {
				driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
				if err != nil {
					return err
				}
				ms := database.NewMigrationService(logger, &database.MigrationConfig{
					MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
					Version:             uint(cfg.DatabaseMigrationVersion),
					Force:               cfg.DatabaseMigrationForce,
				})
				return ms.Migrate(cfg.DatabaseName, driver)
			},
		})
	}
	boot.AddDependency(&dependency{
		name: "http-server",
		start: func(ctx context.Context) error {
			go func() {
				if err := e.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
					fatal(logger, err, "HTTP server failed")
				}
			}()
			return nil
		},
		stop: func(ctx context.Context) error { return e.Shutdown(ctx) },
	})
	syncDeps := []string{"postgres", "elasticsearch"}
	if redisClient != nil {
		syncDeps = append(syncDeps, "redis")
	}
	boot.AddDependency(&dependency{
		name:      "sync-runner",
		dependsOn: syncDeps,
		start:     runner.Start,
		stop:      runner.Stop,
	})

	if err := boot.Start(ctx); err != nil {
		fatal(logger, err, "Startup failed")
	}
	checker.SetReady(true)
	logger.WithField("port", cfg.Port).Infof("%s started", cfg.AppName)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	checker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown finished with errors")
	}
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.WithError(err).Error("Failed to close event producer")
		}
	}
}

func fatal(logger ectologger.Logger, err error, message string) {
	logger.WithError(err).Error(message)
	os.Exit(1)
}

func buildLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	var err error
	if cfg.PrettyLogs {
		zapLogger, err = zap.NewDevelopment()
	} else {
		zapLogger, err = zap.NewProduction()
	}
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func buildServer(cfg *config.Config, logger ectologger.Logger, container ectocontainer.DIContainer, checker *health.Checker) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second
	e.Server.IdleTimeout = time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second

	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqCtx, err := ectoinject.SetActiveContainer(c.Request().Context(), container.GetContainerID())
			if err != nil {
				return err
			}
			c.SetRequest(c.Request().WithContext(reqCtx))
			return next(c)
		}
	})
	e.Use(middleware.Logger(logger))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{AllowOrigins: cfg.AllowOrigins}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	checker.RegisterRoutes(e)
	syncstatus.Register(e.Group("/api/v1/sync"))

	return e
}

// dependency adapts closures to the startup graph.
type dependency struct {
	name      string
	dependsOn []string
	start     func(ctx context.Context) error
	stop      func(ctx context.Context) error
}

func (d *dependency) GetName() string {
	return d.name
}

func (d *dependency) DependsOn() []string {
	return d.dependsOn
}

func (d *dependency) Start(ctx context.Context) error {
	if d.start == nil {
		return nil
	}
	return d.start(ctx)
}

func (d *dependency) Stop(ctx context.Context) error {
	if d.stop == nil {
		return nil
	}
	return d.stop(ctx)
}
