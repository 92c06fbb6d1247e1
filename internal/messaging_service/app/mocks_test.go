package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/messaging_service/domain"
	pbdomain "github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/platform/database"
)

// --- Mocks ---

type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Create(ctx context.Context, q database.Querier, msg *coredomain.Message) error {
	return m.Called(ctx, q, msg).Error(0)
}

func (m *MockMessageRepository) GetByID(ctx context.Context, q database.Querier, id string) (*coredomain.Message, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.Message), args.Error(1)
}

func (m *MockMessageRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*coredomain.Message, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.Message), args.Error(1)
}

func (m *MockMessageRepository) ListByBranch(ctx context.Context, q database.Querier, branchID string, limit, offset int) ([]*coredomain.Message, error) {
	args := m.Called(ctx, q, branchID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.Message), args.Error(1)
}

func (m *MockMessageRepository) UpdateStatus(ctx context.Context, q database.Querier, id string, status coredomain.MessageStatus) error {
	return m.Called(ctx, q, id, status).Error(0)
}

func (m *MockMessageRepository) UpdateCounts(ctx context.Context, q database.Querier, msg *coredomain.Message) error {
	return m.Called(ctx, q, msg).Error(0)
}

type MockRecipientRepository struct {
	mock.Mock
}

func (m *MockRecipientRepository) CreateBatch(ctx context.Context, q database.Querier, rows []*coredomain.MessageRecipient) error {
	return m.Called(ctx, q, rows).Error(0)
}

func (m *MockRecipientRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, q, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepository) FindByProviderMessageID(ctx context.Context, q database.Querier, providerMessageID string) (*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, q, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepository) ListByMessage(ctx context.Context, q database.Querier, messageID string) ([]*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, q, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepository) ListByJob(ctx context.Context, q database.Querier, jobID string) ([]*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, q, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepository) ListFailed(ctx context.Context, q database.Querier, messageID string, ids []string) ([]*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, q, messageID, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockRecipientRepository) ResetForRetry(ctx context.Context, q database.Querier, jobID string, ids []string) error {
	return m.Called(ctx, q, jobID, ids).Error(0)
}

func (m *MockRecipientRepository) MarkFailed(ctx context.Context, q database.Querier, ids []string, reason string, at time.Time) error {
	return m.Called(ctx, q, ids, reason, at).Error(0)
}

func (m *MockRecipientRepository) UpdateDelivery(ctx context.Context, q database.Querier, r *coredomain.MessageRecipient) error {
	return m.Called(ctx, q, r).Error(0)
}

func (m *MockRecipientRepository) CountByJob(ctx context.Context, q database.Querier, jobID string) (coredomain.StatusCounts, error) {
	args := m.Called(ctx, q, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(coredomain.StatusCounts), args.Error(1)
}

func (m *MockRecipientRepository) CountByMessage(ctx context.Context, q database.Querier, messageID string) (coredomain.StatusCounts, error) {
	args := m.Called(ctx, q, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(coredomain.StatusCounts), args.Error(1)
}

type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, q database.Querier, j *coredomain.MessageJob) error {
	return m.Called(ctx, q, j).Error(0)
}

func (m *MockJobRepository) job(args mock.Arguments) (*coredomain.MessageJob, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.MessageJob), args.Error(1)
}

func (m *MockJobRepository) GetByID(ctx context.Context, q database.Querier, id string) (*coredomain.MessageJob, error) {
	return m.job(m.Called(ctx, q, id))
}

func (m *MockJobRepository) GetForUpdate(ctx context.Context, q database.Querier, id string) (*coredomain.MessageJob, error) {
	return m.job(m.Called(ctx, q, id))
}

func (m *MockJobRepository) FindActiveByMessage(ctx context.Context, q database.Querier, messageID string) (*coredomain.MessageJob, error) {
	return m.job(m.Called(ctx, q, messageID))
}

func (m *MockJobRepository) LatestByMessage(ctx context.Context, q database.Querier, messageID string) (*coredomain.MessageJob, error) {
	return m.job(m.Called(ctx, q, messageID))
}

func (m *MockJobRepository) AcquireDueScheduled(ctx context.Context, q database.Querier, now time.Time, limit int) ([]*coredomain.MessageJob, error) {
	args := m.Called(ctx, q, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.MessageJob), args.Error(1)
}

func (m *MockJobRepository) Update(ctx context.Context, q database.Querier, j *coredomain.MessageJob) error {
	return m.Called(ctx, q, j).Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, q database.Querier, id, reason string, at time.Time) error {
	return m.Called(ctx, q, id, reason, at).Error(0)
}

type MockTemplateRepository struct {
	mock.Mock
}

func (m *MockTemplateRepository) template(args mock.Arguments) (*coredomain.Template, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.Template), args.Error(1)
}

func (m *MockTemplateRepository) Create(ctx context.Context, q database.Querier, t *coredomain.Template) error {
	return m.Called(ctx, q, t).Error(0)
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, q database.Querier, id string) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, q, id))
}

func (m *MockTemplateRepository) FindByProviderKey(ctx context.Context, q database.Querier, providerName, providerLanguage string) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, q, providerName, providerLanguage))
}

func (m *MockTemplateRepository) List(ctx context.Context, q database.Querier, filter coredomain.TemplateFilter) ([]*coredomain.Template, error) {
	args := m.Called(ctx, q, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.Template), args.Error(1)
}

func (m *MockTemplateRepository) Update(ctx context.Context, q database.Querier, t *coredomain.Template) error {
	return m.Called(ctx, q, t).Error(0)
}

func (m *MockTemplateRepository) Delete(ctx context.Context, q database.Querier, id string) error {
	return m.Called(ctx, q, id).Error(0)
}

type MockCredentialsRepository struct {
	mock.Mock
}

func (m *MockCredentialsRepository) GetByBranch(ctx context.Context, q database.Querier, branchID string) (*coredomain.ProviderCredentials, error) {
	args := m.Called(ctx, q, branchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.ProviderCredentials), args.Error(1)
}

func (m *MockCredentialsRepository) Upsert(ctx context.Context, q database.Querier, c *coredomain.ProviderCredentials) error {
	return m.Called(ctx, q, c).Error(0)
}

type MockActivityLogRepository struct {
	mock.Mock
}

func (m *MockActivityLogRepository) Append(ctx context.Context, q database.Querier, entry *coredomain.ActivityLog) error {
	return m.Called(ctx, q, entry).Error(0)
}

func (m *MockActivityLogRepository) ListByEntity(ctx context.Context, q database.Querier, entityType, entityID string, limit int) ([]*coredomain.ActivityLog, error) {
	args := m.Called(ctx, q, entityType, entityID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.ActivityLog), args.Error(1)
}

type MockTemplateProvider struct {
	mock.Mock
}

func (m *MockTemplateProvider) SubmitTemplate(ctx context.Context, creds coredomain.ProviderCredentials, sub domain.TemplateSubmission) (*domain.SubmissionResult, error) {
	args := m.Called(ctx, creds, sub)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubmissionResult), args.Error(1)
}

func (m *MockTemplateProvider) ListTemplates(ctx context.Context, creds coredomain.ProviderCredentials) ([]domain.ProviderTemplate, error) {
	args := m.Called(ctx, creds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ProviderTemplate), args.Error(1)
}

type MockDispatchTrigger struct {
	mock.Mock
}

func (m *MockDispatchTrigger) Trigger(ctx context.Context, payload coredomain.DispatchPayload) error {
	return m.Called(ctx, payload).Error(0)
}

type MockResolver struct {
	mock.Mock
}

func (m *MockResolver) Resolve(ctx context.Context, actor authz.Actor, spec pbdomain.TargetSpec) ([]coredomain.Recipient, error) {
	args := m.Called(ctx, actor, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coredomain.Recipient), args.Error(1)
}

// passthroughTx runs fn without a transaction; repository mocks receive a nil Querier.
type passthroughTx struct{}

func (passthroughTx) RunInTx(_ context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}

// --- Test Setup ---

var (
	sender   = authz.Actor{UserID: "u1", Permissions: []string{string(authz.PermMessagesSend), string(authz.PermMessagesRead)}}
	manager  = authz.Actor{UserID: "u2", Permissions: []string{string(authz.PermTemplatesManage)}}
	fixedNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func completeCreds(branchID string) *coredomain.ProviderCredentials {
	return &coredomain.ProviderCredentials{
		BranchID: branchID, PhoneNumberID: "pn-1", BusinessAccountID: "waba-1", AccessToken: "token", APIVersion: "v19.0",
	}
}
