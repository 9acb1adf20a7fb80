package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/redmoon-ch/unchain/config"
	"github.com/redmoon-ch/unchain/internal/handlers"
	"github.com/redmoon-ch/unchain/pkg/audit"
	"github.com/redmoon-ch/unchain/pkg/changerequest"
	"github.com/redmoon-ch/unchain/pkg/database"
	"github.com/redmoon-ch/unchain/pkg/flagstate"
	"github.com/redmoon-ch/unchain/pkg/kafka"
	"github.com/redmoon-ch/unchain/pkg/logging"
	"github.com/redmoon-ch/unchain/pkg/middleware"
	"github.com/redmoon-ch/unchain/pkg/redis"
	"github.com/redmoon-ch/unchain/pkg/repositories"
	"github.com/redmoon-ch/unchain/pkg/tracing"
	"github.com/redmoon-ch/unchain/pkg/tracing/exporters"
)

// RequestValidator adapts go-playground/validator to echo
type RequestValidator struct {
	validate *validator.Validate
}

// Validate implements echo.Validator
func (v *RequestValidator) Validate(i any) error {
	return v.validate.Struct(i)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.PrettyLogs)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger ectologger.Logger) error {
	if cfg.OTLPEnabled {
		exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
			Endpoint: cfg.OTLPEndpoint,
			Protocol: cfg.OTLPProtocol,
			Insecure: cfg.OTLPInsecure,
			Timeout:  10 * time.Second,
		})
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(cfg.AppName),
			)),
		)
		otel.SetTracerProvider(tp)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	db, err := database.Connect(ctx, database.ConnectConfig{
		Host:            cfg.DatabaseHost,
		Port:            cfg.DatabasePort,
		UserName:        cfg.DatabaseUserName,
		Password:        cfg.DatabasePassword,
		Name:            cfg.DatabaseName,
		SSLMode:         cfg.DatabaseSSLMode,
		MaxOpenConns:    cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: cfg.DatabaseConnMaxLifetime,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	instance := db.(*database.DatabaseInstance)
	driver, err := postgres.WithInstance(instance.DB.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             cfg.DatabaseMigrationVersion,
		Force:               cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	locker := redis.NewLocker(redisClient, "")

	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ParseConfig(cfg.KafkaBrokers, cfg.KafkaEventTopic), logger)
		defer producer.Close()
	}

	projectRepo := repositories.NewProjectRepository(db, logger)
	environmentRepo := repositories.NewEnvironmentRepository(db, logger)
	contextFieldRepo := repositories.NewContextFieldRepository(db, logger)
	definitionRepo := repositories.NewStrategyDefinitionRepository(db, logger)
	featureRepo := repositories.NewFeatureRepository(db, logger)
	strategyRepo := repositories.NewStrategyRepository(db, logger)
	changeRequestRepo := repositories.NewChangeRequestRepository(db, logger)
	auditRepo := repositories.NewAuditLogRepository(db, logger)
	metricRepo := repositories.NewFeatureMetricRepository(db, logger)

	signer := audit.NewSigner(cfg.AuditSigningSecret)
	if !signer.Enabled() {
		logger.Warn("Audit integrity signing is disabled: set AUDIT_SIGNING_SECRET to enable it")
	}
	auditService := audit.NewService(auditRepo, signer, logger)

	flagService := flagstate.NewService(featureRepo, strategyRepo, environmentRepo,
		definitionRepo, contextFieldRepo, changeRequestRepo, auditService, locker, producer, logger)
	changeRequestService := changerequest.NewService(changeRequestRepo, environmentRepo,
		featureRepo, flagService, auditService, locker, producer, logger)
	scheduler := changerequest.NewScheduler(changeRequestService, changeRequestRepo,
		locker, logger, cfg.SchedulerPollInterval)

	e := echo.New()
	e.HideBanner = true
	e.Validator = &RequestValidator{validate: validator.New()}
	e.HTTPErrorHandler = middleware.Error(logger, cfg.AuthLoginURL)
	e.Use(middleware.Context(cfg.AuthEnabled))
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))

	e.GET("/healthz", func(c echo.Context) error {
		healthCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(healthCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		}
		if err := redisClient.Ping(healthCtx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "redis unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	if cfg.AuthEnabled {
		api.Use(middleware.Authentication(logger, cfg.AuthIssuerURL, cfg.AuthClientID))
	}

	handlers.NewProjectHandler(projectRepo).RegisterRoutes(api)
	handlers.NewEnvironmentHandler(environmentRepo).RegisterRoutes(api)
	handlers.NewContextFieldHandler(contextFieldRepo).RegisterRoutes(api)
	handlers.NewStrategyDefinitionHandler(definitionRepo).RegisterRoutes(api)
	handlers.NewFeatureHandler(featureRepo, strategyRepo, flagService).RegisterRoutes(api)
	handlers.NewChangeRequestHandler(changeRequestService, environmentRepo).RegisterRoutes(api)
	handlers.NewHistoryHandler(auditService).RegisterRoutes(api)
	handlers.NewDashboardHandler(projectRepo, environmentRepo, featureRepo, changeRequestRepo, metricRepo).RegisterRoutes(api)
	handlers.NewClientHandler(flagService, metricRepo, producer).RegisterRoutes(api.Group("/client"))

	if cfg.SchedulerEnabled {
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	logger.Infof("%s listening on port %d", cfg.AppName, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped unexpectedly: %w", err)
	case <-quit:
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.SchedulerEnabled {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Scheduler did not stop cleanly")
		}
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
