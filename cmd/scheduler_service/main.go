package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	pgrepo "github.com/campusline/comms_services/internal/core_messaging/repository/postgres"
	"github.com/campusline/comms_services/internal/messaging_service/adapters/dispatch"
	msgapp "github.com/campusline/comms_services/internal/messaging_service/app"
	pbapp "github.com/campusline/comms_services/internal/phonebook_service/app"
	pbrepo "github.com/campusline/comms_services/internal/phonebook_service/repository/postgres"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/config"
	"github.com/campusline/comms_services/internal/platform/database"
	"github.com/campusline/comms_services/internal/platform/logger"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
	"github.com/campusline/comms_services/internal/scheduler_service/app"
)

const (
	serviceName    = "scheduler_service"
	startupTimeout = 30 * time.Second
)

func main() {
	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel).With("service", serviceName)
	log.Info("Starting service...")

	startupCtx, startupCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startupCancel()

	dbPool, err := database.NewDBPool(startupCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("Failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("Database connection pool initialized")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, log, true)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	log.Info("NATS connection initialized")

	triggerTimeout := time.Duration(cfg.DispatchTriggerTimeoutSeconds) * time.Second
	trigger, err := dispatch.NewTrigger(startupCtx, dispatch.TriggerConfig{
		Mode:      cfg.DispatchTriggerMode,
		Subject:   cfg.DispatchSubject,
		Stream:    cfg.DispatchStream,
		WorkerURL: cfg.DispatchWorkerURL,
		Timeout:   triggerTimeout,
	}, natsClient, log)
	if err != nil {
		log.Error("Failed to set up dispatch trigger", "error", err, "mode", cfg.DispatchTriggerMode)
		os.Exit(1)
	}

	jobRepo := pgrepo.NewPgJobRepository(log)
	templateRepo := pgrepo.NewPgTemplateRepository(log)
	checker := authz.NewClaimsChecker()
	dispatchService := msgapp.NewDispatchService(msgapp.DispatchDeps{
		DB:          dbPool,
		Tx:          database.NewPgTransactor(dbPool),
		Messages:    pgrepo.NewPgMessageRepository(log),
		Recipients:  pgrepo.NewPgRecipientRepository(log),
		Jobs:        jobRepo,
		Templates:   templateRepo,
		Credentials: pgrepo.NewPgCredentialsRepository(log),
		Trigger:     trigger,
		Resolver:    pbapp.NewResolver(dbPool, pbrepo.NewPgDirectoryRepository(log), checker, log),
		Activity:    msgapp.NewActivityRecorder(dbPool, pgrepo.NewPgActivityLogRepository(log), log),
		Checker:     checker,
	}, msgapp.DispatchConfig{
		DefaultRegion:  cfg.DefaultPhoneRegion,
		TriggerTimeout: triggerTimeout,
	}, log)

	poller := app.NewJobPoller(dbPool, jobRepo, dispatchService, log, app.PollerConfig{
		PollingInterval: time.Duration(cfg.SchedulerPollingIntervalSeconds) * time.Second,
		JobBatchSize:    cfg.SchedulerJobBatchSize,
	})

	log.Info("Service components initialized. Service is ready.")
	if err := poller.Run(mainCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Job poller stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown complete.")
}
