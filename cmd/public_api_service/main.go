package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	pgrepo "github.com/campusline/comms_services/internal/core_messaging/repository/postgres"
	drapp "github.com/campusline/comms_services/internal/delivery_retrieval_service/app"
	drrepo "github.com/campusline/comms_services/internal/delivery_retrieval_service/repository/postgres"
	exportapp "github.com/campusline/comms_services/internal/export_service/app"
	"github.com/campusline/comms_services/internal/messaging_service/adapters/dispatch"
	"github.com/campusline/comms_services/internal/messaging_service/adapters/whatsapp"
	msgapp "github.com/campusline/comms_services/internal/messaging_service/app"
	pbapp "github.com/campusline/comms_services/internal/phonebook_service/app"
	pbrepo "github.com/campusline/comms_services/internal/phonebook_service/repository/postgres"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/config"
	"github.com/campusline/comms_services/internal/platform/database"
	"github.com/campusline/comms_services/internal/platform/logger"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
	httptransport "github.com/campusline/comms_services/internal/public_api_service/transport/http"
)

const (
	serviceName     = "public_api_service"
	shutdownTimeout = 30 * time.Second
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel)
	appLogger.Info("Public API service starting...", "port", cfg.PublicAPIServicePort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		appLogger.Error("Failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	appLogger.Info("Connected to PostgreSQL database")

	natsClient, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLogger, true)
	if err != nil {
		appLogger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	appLogger.Info("Successfully connected to NATS")

	triggerTimeout := time.Duration(cfg.DispatchTriggerTimeoutSeconds) * time.Second
	trigger, err := dispatch.NewTrigger(ctx, dispatch.TriggerConfig{
		Mode:      cfg.DispatchTriggerMode,
		Subject:   cfg.DispatchSubject,
		Stream:    cfg.DispatchStream,
		WorkerURL: cfg.DispatchWorkerURL,
		Timeout:   triggerTimeout,
	}, natsClient, appLogger)
	if err != nil {
		appLogger.Error("Failed to set up dispatch trigger", "error", err, "mode", cfg.DispatchTriggerMode)
		os.Exit(1)
	}

	// Repositories
	messageRepo := pgrepo.NewPgMessageRepository(appLogger)
	recipientRepo := pgrepo.NewPgRecipientRepository(appLogger)
	jobRepo := pgrepo.NewPgJobRepository(appLogger)
	templateRepo := pgrepo.NewPgTemplateRepository(appLogger)
	credentialsRepo := pgrepo.NewPgCredentialsRepository(appLogger)
	activityRepo := pgrepo.NewPgActivityLogRepository(appLogger)
	directoryRepo := pbrepo.NewPgDirectoryRepository(appLogger)

	tx := database.NewPgTransactor(dbPool)
	checker := authz.NewClaimsChecker()
	activity := msgapp.NewActivityRecorder(dbPool, activityRepo, appLogger)
	waClient := whatsapp.NewClient(appLogger, cfg.WhatsAppAPIBaseURL, nil)

	// Application services
	resolver := pbapp.NewResolver(dbPool, directoryRepo, checker, appLogger)
	templateService := msgapp.NewTemplateService(dbPool, templateRepo, credentialsRepo, waClient, activity, checker, appLogger)
	dispatchService := msgapp.NewDispatchService(msgapp.DispatchDeps{
		DB:          dbPool,
		Tx:          tx,
		Messages:    messageRepo,
		Recipients:  recipientRepo,
		Jobs:        jobRepo,
		Templates:   templateRepo,
		Credentials: credentialsRepo,
		Trigger:     trigger,
		Resolver:    resolver,
		Activity:    activity,
		Checker:     checker,
	}, msgapp.DispatchConfig{
		DefaultRegion:  cfg.DefaultPhoneRegion,
		TriggerTimeout: triggerTimeout,
	}, appLogger)
	exportService := exportapp.NewExportService(dbPool, messageRepo, recipientRepo, checker, appLogger, "")
	reconciler := drapp.NewReconciler(dbPool, tx, recipientRepo, jobRepo, messageRepo, activityRepo,
		drrepo.NewPgPendingStatusRepository(appLogger), appLogger)

	validate := validator.New()
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:          appLogger,
		JWTAccessSecret: []byte(cfg.JWTAccessSecret),
		WorkerTokenHash: cfg.WorkerTokenHash,
		Recipients:      httptransport.NewRecipientHandler(resolver, appLogger, validate),
		Templates:       httptransport.NewTemplateHandler(templateService, appLogger, validate),
		Messages:        httptransport.NewMessageHandler(dispatchService, exportService, appLogger, validate),
		Webhooks:        httptransport.NewWebhookHandler(natsClient, cfg.WhatsAppWebhookVerifyToken, cfg.WhatsAppAppSecret, appLogger),
		Worker:          httptransport.NewWorkerHandler(reconciler, appLogger, validate),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.PublicAPIServicePort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		appLogger.Info("Public API server listening", "port", cfg.PublicAPIServicePort)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		appLogger.Info("Shutdown signal received, shutting down HTTP server...")
	case err := <-serverErr:
		appLogger.Error("HTTP server failed to serve", "error", err)
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpServer.Shutdown(ctxShutdown); err != nil {
		appLogger.Error("HTTP server shutdown failed", "error", err)
	} else {
		appLogger.Info("HTTP server shut down gracefully.")
	}
	appLogger.Info("Public API service shut down.")
}
