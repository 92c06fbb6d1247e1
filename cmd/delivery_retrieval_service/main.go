package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	pgrepo "github.com/campusline/comms_services/internal/core_messaging/repository/postgres"
	"github.com/campusline/comms_services/internal/delivery_retrieval_service/app"
	drrepo "github.com/campusline/comms_services/internal/delivery_retrieval_service/repository/postgres"
	"github.com/campusline/comms_services/internal/platform/cache"
	"github.com/campusline/comms_services/internal/platform/config"
	"github.com/campusline/comms_services/internal/platform/database"
	"github.com/campusline/comms_services/internal/platform/logger"
	"github.com/campusline/comms_services/internal/platform/messagebroker"
)

const (
	serviceName     = "delivery_retrieval_service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
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

	rdb, err := cache.NewRedisClient(startupCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info("Redis connection initialized")

	nc, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, log, false)
	if err != nil {
		log.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	log.Info("NATS connection initialized")

	recipientRepo := pgrepo.NewPgRecipientRepository(log)
	jobRepo := pgrepo.NewPgJobRepository(log)
	messageRepo := pgrepo.NewPgMessageRepository(log)
	activityRepo := pgrepo.NewPgActivityLogRepository(log)

	pendingRepo := drrepo.NewPgPendingStatusRepository(log)

	reconciler := app.NewReconciler(dbPool, database.NewPgTransactor(dbPool), recipientRepo, jobRepo, messageRepo, activityRepo, pendingRepo, log)
	deduper := app.NewRedisDeduper(rdb, time.Duration(cfg.CallbackDedupeTTLSeconds)*time.Second)
	consumer := app.NewStatusConsumer(nc, reconciler, deduper, log)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.DeliveryRetrievalGRPCPort))
	if err != nil {
		log.Error("Failed to listen for gRPC", "error", err, "port", cfg.DeliveryRetrievalGRPCPort)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		if err := consumer.StartConsuming(groupCtx, cfg.StatusEventSubject, cfg.StatusEventQueueGroup); err != nil {
			return fmt.Errorf("status consumer: %w", err)
		}
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		log.Info("Status consumer subscribed", "subject", cfg.StatusEventSubject, "queue_group", cfg.StatusEventQueueGroup)
		<-groupCtx.Done()
		return nil
	})

	g.Go(func() error {
		retention := time.Duration(cfg.ParkedStatusRetentionHours) * time.Hour
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if _, err := reconciler.PurgeParked(groupCtx, retention); err != nil {
					log.Error("Failed to purge parked status updates", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		log.Info("gRPC health server listening", "port", cfg.DeliveryRetrievalGRPCPort)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		log.Info("Attempting graceful shutdown...")
		healthServer.Shutdown()
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			grpcServer.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Service shutdown complete.")
}
