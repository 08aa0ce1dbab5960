package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/dubox-platform/production-service/internal/activities"
	"github.com/dubox-platform/production-service/internal/applicability"
	"github.com/dubox-platform/production-service/internal/application"
	"github.com/dubox-platform/production-service/internal/bootstrap"
	"github.com/dubox-platform/production-service/internal/workflows"
	"github.com/dubox-platform/production-service/pkg/cloudevents"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/mongodb"
	"github.com/dubox-platform/production-service/pkg/temporal"
)

const serviceName = "production-worker"

func main() {
	logger := logging.New(logging.DefaultConfig(serviceName))
	logger.SetDefault()

	logger.Info("Starting production-service SLA worker")

	config := loadConfig()
	ctx := context.Background()

	m := metrics.New(metrics.DefaultConfig(serviceName))

	cat, err := bootstrap.LoadCatalog(config.CatalogPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load catalog", "path", config.CatalogPath)
		os.Exit(1)
	}

	matrix, err := bootstrap.LoadMatrix(config.PermissionsPath)
	if err != nil {
		logger.WithError(err).Error("Failed to load permission matrix", "path", config.PermissionsPath)
		os.Exit(1)
	}

	storage, err := bootstrap.OpenStorage(ctx, bootstrap.StorageMongoDB, config.MongoDB, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = storage.Close(closeCtx)
	}()

	// The worker only flags attempts; timers are started by the API.
	coordinator := application.NewCoordinator(application.Config{
		Resolver:     applicability.NewResolver(cat),
		Boxes:        storage.Boxes,
		Progress:     storage.Progress,
		WIRs:         storage.WIRs,
		Outbox:       storage.Outbox,
		UnitOfWork:   storage.UnitOfWork,
		Authorizer:   matrix,
		EventFactory: cloudevents.NewEventFactory(cloudevents.SourceStageGate, cat.Version),
		Logger:       logger,
		Metrics:      m,
		WIRSLADays:   config.WIRSLADays,
	})

	temporalClient, err := temporal.NewClient(config.Temporal, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()

	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort, "namespace", config.Temporal.Namespace)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Inspection))

	w.RegisterWorkflowWithOptions(workflows.InspectionSLAWorkflow, workflow.RegisterOptions{
		Name: temporal.WorkflowNames.InspectionSLA,
	})

	slaActivities := activities.NewSLAActivities(coordinator)
	w.RegisterActivityWithOptions(slaActivities.FlagOverdueWIR, activity.RegisterOptions{
		Name: workflows.FlagOverdueActivity,
	})

	logger.Info("Registered workflows and activities",
		"taskQueue", temporal.TaskQueues.Inspection,
		"workflows", []string{temporal.WorkflowNames.InspectionSLA},
		"activities", []string{workflows.FlagOverdueActivity},
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(nil)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("Shutting down worker...")
		w.Stop()
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("Worker stopped unexpectedly")
			os.Exit(1)
		}
	}

	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	MongoDB         *mongodb.Config
	Temporal        *temporal.Config
	CatalogPath     string
	PermissionsPath string
	WIRSLADays      int
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", "mongodb://localhost:27017")
	mongoConfig.Database = getEnv("MONGODB_DATABASE", "production_db")

	temporalConfig := temporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", "localhost:7233")
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", "default")
	temporalConfig.Identity = serviceName

	return &Config{
		MongoDB:         mongoConfig,
		Temporal:        temporalConfig,
		CatalogPath:     getEnv("CATALOG_PATH", ""),
		PermissionsPath: getEnv("PERMISSIONS_PATH", ""),
		WIRSLADays:      getEnvInt("WIR_SLA_DAYS", 3),
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil && n > 0 {
		return n
	}
	return defaultValue
}
