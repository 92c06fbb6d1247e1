package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	pgrepo "github.com/campusline/comms_services/internal/core_messaging/repository/postgres"
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
)

const serviceName = "comms_admin"

var (
	cfg      *config.Config
	appLog   *slog.Logger
	operator string
)

var rootCmd = &cobra.Command{
	Use:   "comms-admin",
	Short: "Operator tooling for the school communication services",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		appLog = logger.NewWithWriter(os.Stderr, cfg.LogLevel)
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&operator, "operator", "comms_admin", "user id recorded as the actor of operator actions")
	rootCmd.AddCommand(migrateCmd, templatesCmd, messagesCmd, settingsCmd, tokenCmd)
}

// operatorActor runs CLI actions with super-admin rights under the operator's id.
func operatorActor() authz.Actor {
	return authz.Actor{UserID: operator, IsSuperAdmin: true}
}

// services holds the application services the CLI drives.
type services struct {
	templates *msgapp.TemplateService
	dispatch  *msgapp.DispatchService
	export    *exportapp.ExportService
	settings  *msgapp.SettingsService
	close     func()
}

func newServices(ctx context.Context, withTrigger bool) (*services, error) {
	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	closers := []func(){dbPool.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var trigger dispatch.StreamBroker
	triggerTimeout := time.Duration(cfg.DispatchTriggerTimeoutSeconds) * time.Second
	if withTrigger && cfg.DispatchTriggerMode != dispatch.ModeHTTP {
		nc, err := messagebroker.NewNatsClient(cfg.NATSUrl, serviceName, appLog, true)
		if err != nil {
			closeAll()
			return nil, err
		}
		closers = append(closers, nc.Close)
		trigger = nc
	}

	messageRepo := pgrepo.NewPgMessageRepository(appLog)
	recipientRepo := pgrepo.NewPgRecipientRepository(appLog)
	templateRepo := pgrepo.NewPgTemplateRepository(appLog)
	credentialsRepo := pgrepo.NewPgCredentialsRepository(appLog)
	checker := authz.NewClaimsChecker()
	activity := msgapp.NewActivityRecorder(dbPool, pgrepo.NewPgActivityLogRepository(appLog), appLog)

	svc := &services{
		templates: msgapp.NewTemplateService(dbPool, templateRepo, credentialsRepo,
			whatsapp.NewClient(appLog, cfg.WhatsAppAPIBaseURL, nil), activity, checker, appLog),
		export:   exportapp.NewExportService(dbPool, messageRepo, recipientRepo, checker, appLog, ""),
		settings: msgapp.NewSettingsService(dbPool, credentialsRepo, activity, checker, appLog),
		close:    closeAll,
	}
	if withTrigger {
		t, err := dispatch.NewTrigger(ctx, dispatch.TriggerConfig{
			Mode:      cfg.DispatchTriggerMode,
			Subject:   cfg.DispatchSubject,
			Stream:    cfg.DispatchStream,
			WorkerURL: cfg.DispatchWorkerURL,
			Timeout:   triggerTimeout,
		}, trigger, appLog)
		if err != nil {
			closeAll()
			return nil, err
		}
		svc.dispatch = msgapp.NewDispatchService(msgapp.DispatchDeps{
			DB:          dbPool,
			Tx:          database.NewPgTransactor(dbPool),
			Messages:    messageRepo,
			Recipients:  recipientRepo,
			Jobs:        pgrepo.NewPgJobRepository(appLog),
			Templates:   templateRepo,
			Credentials: credentialsRepo,
			Trigger:     t,
			Resolver:    pbapp.NewResolver(dbPool, pbrepo.NewPgDirectoryRepository(appLog), checker, appLog),
			Activity:    activity,
			Checker:     checker,
		}, msgapp.DispatchConfig{DefaultRegion: cfg.DefaultPhoneRegion, TriggerTimeout: triggerTimeout}, appLog)
	}
	return svc, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
