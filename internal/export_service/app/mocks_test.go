package app

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
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

