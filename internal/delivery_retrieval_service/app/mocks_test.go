package app

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
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

type MockPendingStatusRepository struct {
	mock.Mock
}

func (m *MockPendingStatusRepository) Lock(ctx context.Context, q database.Querier, providerMessageID string) error {
	return m.Called(ctx, q, providerMessageID).Error(0)
}

func (m *MockPendingStatusRepository) Park(ctx context.Context, q database.Querier, u domain.StatusUpdate) error {
	return m.Called(ctx, q, u).Error(0)
}

func (m *MockPendingStatusRepository) Take(ctx context.Context, q database.Querier, providerMessageID string) ([]domain.StatusUpdate, error) {
	args := m.Called(ctx, q, providerMessageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.StatusUpdate), args.Error(1)
}

func (m *MockPendingStatusRepository) PurgeBefore(ctx context.Context, q database.Querier, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, q, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type passthroughTx struct{}

func (passthroughTx) RunInTx(_ context.Context, fn func(q database.Querier) error) error {
	return fn(nil)
}
