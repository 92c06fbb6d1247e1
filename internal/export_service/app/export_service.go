package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	exportDomain "github.com/campusline/comms_services/internal/export_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// ExportService renders read-only reports over message delivery records.
type ExportService struct {
	db         database.Querier
	messages   coredomain.MessageRepository
	recipients coredomain.RecipientRepository
	checker    authz.Checker
	logger     *slog.Logger
	exportPath string
}

func NewExportService(
	db database.Querier,
	messages coredomain.MessageRepository,
	recipients coredomain.RecipientRepository,
	checker authz.Checker,
	logger *slog.Logger,
	exportPath string,
) *ExportService {
	if exportPath == "" {
		exportPath = "/tmp/exports"
	}
	return &ExportService{
		db:         db,
		messages:   messages,
		recipients: recipients,
		checker:    checker,
		logger:     logger.With("service", "export"),
		exportPath: exportPath,
	}
}

// WriteDeliveryLog writes one CSV row per recipient of the message, invalid phones included.
func (s *ExportService) WriteDeliveryLog(ctx context.Context, actor authz.Actor, messageID string, w io.Writer) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(coredomain.KindOf(err))
		}
		deliveryLogExportsCounter.WithLabelValues(outcome).Inc()
		deliveryLogExportDuration.Observe(time.Since(start).Seconds())
	}()

	msg, err := s.messages.GetByID(ctx, s.db, messageID)
	if err != nil {
		return err
	}
	if !s.checker.Can(ctx, actor, authz.PermMessagesRead, msg.BranchID) {
		return fmt.Errorf("%w: %s required", coredomain.ErrForbidden, authz.PermMessagesRead)
	}

	rows, err := s.recipients.ListByMessage(ctx, s.db, messageID)
	if err != nil {
		return fmt.Errorf("fetching recipients for export failed: %w", err)
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(exportDomain.DeliveryLogHeader); err != nil {
		return fmt.Errorf("writing CSV header failed: %w", err)
	}
	for _, r := range rows {
		if err := writer.Write(exportDomain.DeliveryLogRow(r)); err != nil {
			return fmt.Errorf("writing CSV row for recipient %s failed: %w", r.ID, err)
		}
		deliveryLogRowsCounter.WithLabelValues(string(r.Status)).Inc()
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv writer error: %w", err)
	}

	s.logger.InfoContext(ctx, "Delivery log exported", "message_id", messageID, "num_records", len(rows), "auth_user_id", actor.UserID)
	return nil
}

// ExportDeliveryLogToFile writes the delivery log under the export path and returns the file path.
func (s *ExportService) ExportDeliveryLogToFile(ctx context.Context, actor authz.Actor, messageID string) (string, error) {
	if err := os.MkdirAll(s.exportPath, 0750); err != nil {
		return "", fmt.Errorf("could not create export directory: %w", err)
	}
	fileName := fmt.Sprintf("delivery_log_%s_%s.csv", messageID, time.Now().UTC().Format("20060102T150405Z"))
	fullPath := filepath.Join(s.exportPath, fileName)

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("creating CSV file failed: %w", err)
	}
	if err := s.WriteDeliveryLog(ctx, actor, messageID, file); err != nil {
		_ = file.Close()
		_ = os.Remove(fullPath)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(fullPath)
		return "", fmt.Errorf("closing CSV file failed: %w", err)
	}
	return fullPath, nil
}
