package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apispec "github.com/dubox-platform/production-service/api"
	"github.com/dubox-platform/production-service/internal/api/handlers"
	"github.com/dubox-platform/production-service/internal/applicability"
	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/bootstrap"
	"github.com/dubox-platform/production-service/internal/scheduler"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
	"github.com/dubox-platform/production-service/pkg/contracts/openapi"
	"github.com/dubox-platform/production-service/pkg/idempotency"
	"github.com/dubox-platform/production-service/pkg/kafka"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/middleware"
	"github.com/dubox-platform/production-service/pkg/mongodb"
	"github.com/dubox-platform/production-service/pkg/outbox"
	"github.com/dubox-platform/production-service/pkg/resilience"
	"github.com/dubox-platform/production-service/pkg/temporal"
	"github.com/dubox-platform/production-service/pkg/tracing"
)

const serviceName = "production-service"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting production-service API")

	config := loadConfig()
	ctx := context.Background()

	// Tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = config.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))

	// Catalog and permission matrix
	cat, err := bootstrap.LoadCatalog(config.CatalogPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load catalog", "path", config.CatalogPath)
		os.Exit(1)
	}
	logger.Info("Catalog loaded", "version", cat.Version, "activities", len(cat.Activities), "checklists", len(cat.Checklists))

	matrix, err := bootstrap.LoadMatrix(config.PermissionsPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load permission matrix", "path", config.PermissionsPath)
		os.Exit(1)
	}

	storage, err := bootstrap.OpenStorage(ctx, config.Storage, config.MongoDB, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize storage", "storage", config.Storage)
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = storage.Close(closeCtx)
	}()
	logger.Info("Storage initialized", "storage", config.Storage)

	// Outbox relay
	var outboxRepo outbox.Repository
	if config.OutboxEnabled {
		outboxRepo = storage.Outbox

		kafkaConfig := kafka.DefaultConfig()
		kafkaConfig.Brokers = config.KafkaBrokers
		kafkaConfig.ClientID = serviceName
		producer := kafka.NewProducer(kafkaConfig, logger, m)
		defer producer.Close()

		publisher := outbox.NewPublisher(outboxRepo, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: time.Second,
			BatchSize:    100,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer publisher.Stop()
		logger.Info("Outbox publisher started", "brokers", config.KafkaBrokers)
	}

	// Inspection SLA scheduling
	var slaScheduler application.InspectionScheduler = application.NoopScheduler{}
	if config.TemporalEnabled {
		var temporalClient *temporal.Client
		err := resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
			var dialErr error
			temporalClient, dialErr = temporal.NewClient(config.Temporal, logger)
			return dialErr
		})
		if err != nil {
			logger.WithError(err).Warn("Temporal unavailable, inspection SLA timers disabled")
		} else {
			defer temporalClient.Close()
			slaScheduler = scheduler.NewTemporalScheduler(temporalClient, logger)
			logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort)
		}
	}

	resolver := applicability.NewResolver(cat)
	coordinator := application.NewCoordinator(application.Config{
		Resolver:     resolver,
		Boxes:        storage.Boxes,
		Progress:     storage.Progress,
		WIRs:         storage.WIRs,
		Outbox:       outboxRepo,
		UnitOfWork:   storage.UnitOfWork,
		Authorizer:   matrix,
		Scheduler:    slaScheduler,
		EventFactory: cloudevents.NewEventFactory(cloudevents.SourceStageGate, cat.Version),
		Logger:       logger,
		Metrics:      m,
		WIRSLADays:   config.WIRSLADays,
	})

	// HTTP
	gin.SetMode(getEnv("GIN_MODE", gin.ReleaseMode))
	router := gin.New()

	if len(config.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     config.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Correlation-ID", middleware.HeaderUserID, idempotency.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Correlation-ID", idempotency.HeaderReplayed},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	middlewareConfig := middleware.DefaultConfig(serviceName, logger, m)
	middlewareConfig.EnableTracing = config.TracingEnabled
	middleware.Setup(router, middlewareConfig)

	if config.OpenAPIValidation {
		validator, err := openapi.NewValidatorFromBytes(apispec.OpenAPISpec)
		if err != nil {
			logger.WithError(err).Error("Failed to load OpenAPI contract")
			os.Exit(1)
		}
		router.Use(middleware.OpenAPIValidation(validator))
	}

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, storage.Ready))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	router.GET("/openapi.yaml", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", apispec.OpenAPISpec)
	})

	api := router.Group("/api/v1")
	if config.IdempotencyEnabled {
		api.Use(idempotency.Middleware(idempotency.DefaultConfig(serviceName, storage.Keys, logger, m)))
	}
	handlers.NewProductionHandlers(coordinator, logger).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr         string
	Storage            string
	MongoDB            *mongodb.Config
	KafkaBrokers       []string
	OutboxEnabled      bool
	CatalogPath        string
	PermissionsPath    string
	TracingEnabled     bool
	OTLPEndpoint       string
	TemporalEnabled    bool
	Temporal           *temporal.Config
	WIRSLADays         int
	OpenAPIValidation  bool
	IdempotencyEnabled bool
	CORSAllowedOrigins []string
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "production_db")

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", "localhost:7233")
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", "default")
	temporalConfig.Identity = serviceName + "-api"

	return &Config{
		ServerAddr:         getEnv("SERVER_ADDR", ":8080"),
		Storage:            strings.ToLower(getEnv("STORAGE", "mongodb")),
		MongoDB:            mongoConfig,
		KafkaBrokers:       strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		OutboxEnabled:      getEnvBool("OUTBOX_ENABLED", true),
		CatalogPath:        getEnv("CATALOG_PATH", ""),
		PermissionsPath:    getEnv("PERMISSIONS_PATH", ""),
		TracingEnabled:     getEnvBool("TRACING_ENABLED", false),
		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TemporalEnabled:    getEnvBool("TEMPORAL_ENABLED", true),
		Temporal:           temporalConfig,
		WIRSLADays:         getEnvInt("WIR_SLA_DAYS", 3),
		OpenAPIValidation:  getEnvBool("OPENAPI_VALIDATION", true),
		IdempotencyEnabled: getEnvBool("IDEMPOTENCY_ENABLED", true),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
