package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
)

// --- Mocks ---

type MockNatsClient struct {
	mock.Mock
}

func (m *MockNatsClient) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

func (m *MockNatsClient) SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error {
	return m.Called(ctx, subject, queueGroup, handler).Error(0)
}

func (m *MockNatsClient) Close() {
	m.Called()
}

type MockStatusApplier struct {
	mock.Mock
}

func (m *MockStatusApplier) ApplyStatus(ctx context.Context, source string, u domain.StatusUpdate) (Outcome, error) {
	args := m.Called(ctx, source, u)
	return args.Get(0).(Outcome), args.Error(1)
}

// --- Test Setup ---

const deliveredBody = `{"object":"whatsapp_business_account","entry":[{"id":"waba-1","changes":[{"field":"messages","value":{
	"messaging_product":"whatsapp","statuses":[{"id":"wamid.A","status":"delivered","timestamp":"1767225600","recipient_id":"919876543210"}]}}]}]}`

func setupConsumer(t *testing.T) (*StatusConsumer, *MockNatsClient, *MockStatusApplier, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	natsClient := new(MockNatsClient)
	applier := new(MockStatusApplier)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStatusConsumer(natsClient, applier, NewRedisDeduper(rdb, time.Hour), logger), natsClient, applier, mr
}

func deliveredUpdate() domain.StatusUpdate {
	return domain.StatusUpdate{
		ProviderMessageID: "wamid.A", Status: coredomain.RecipientDelivered,
		At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStatusConsumer_AppliesOnceForDuplicateCallbacks(t *testing.T) {
	consumer, _, applier, mr := setupConsumer(t)
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeApplied, nil).Once()

	ctx := context.Background()
	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))
	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))

	applier.AssertExpectations(t)
	assert.True(t, mr.Exists("delivery:status:wamid.A:delivered"))
}

func TestStatusConsumer_ForgetsKeyWhenApplyFails(t *testing.T) {
	consumer, _, applier, mr := setupConsumer(t)
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(Outcome(""), errors.New("db down")).Once()
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeApplied, nil).Once()

	ctx := context.Background()
	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))
	assert.False(t, mr.Exists("delivery:status:wamid.A:delivered"))

	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))
	applier.AssertNumberOfCalls(t, "ApplyStatus", 2)
}

func TestStatusConsumer_ParkedCallbackIsNotDeduped(t *testing.T) {
	consumer, _, applier, mr := setupConsumer(t)
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeParked, nil).Once()
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeApplied, nil).Once()

	ctx := context.Background()
	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))
	assert.False(t, mr.Exists("delivery:status:wamid.A:delivered"))

	consumer.handle(ctx, "delivery.status.whatsapp", []byte(deliveredBody))
	applier.AssertNumberOfCalls(t, "ApplyStatus", 2)
	assert.True(t, mr.Exists("delivery:status:wamid.A:delivered"))
}

func TestStatusConsumer_DedupeOutageStillApplies(t *testing.T) {
	consumer, _, applier, mr := setupConsumer(t)
	mr.Close()
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeApplied, nil).Once()

	consumer.handle(context.Background(), "delivery.status.whatsapp", []byte(deliveredBody))
	applier.AssertExpectations(t)
}

func TestStatusConsumer_RejectsBadInput(t *testing.T) {
	consumer, _, applier, _ := setupConsumer(t)
	ctx := context.Background()

	consumer.handle(ctx, "dlr.raw.whatsapp", []byte(deliveredBody))
	consumer.handle(ctx, "delivery.status.sms", []byte(deliveredBody))
	consumer.handle(ctx, "delivery.status.whatsapp", []byte(`{not json`))

	applier.AssertNotCalled(t, "ApplyStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestStatusConsumer_StartConsuming(t *testing.T) {
	consumer, natsClient, applier, _ := setupConsumer(t)
	applier.On("ApplyStatus", mock.Anything, "whatsapp", deliveredUpdate()).Return(OutcomeApplied, nil).Once()

	natsClient.On("SubscribeToSubjectWithQueue", mock.Anything, "delivery.status.>", "reconcilers", mock.Anything).
		Run(func(args mock.Arguments) {
			handler := args.Get(3).(nats.MsgHandler)
			handler(&nats.Msg{Subject: "delivery.status.whatsapp", Data: []byte(deliveredBody)})
		}).Return(nil).Once()

	require.NoError(t, consumer.StartConsuming(context.Background(), "delivery.status.>", "reconcilers"))
	applier.AssertExpectations(t)
}

func TestStatusConsumer_StartConsuming_SubscribeError(t *testing.T) {
	consumer, natsClient, _, _ := setupConsumer(t)
	natsClient.On("SubscribeToSubjectWithQueue", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("nats: connection closed")).Once()

	err := consumer.StartConsuming(context.Background(), "delivery.status.>", "reconcilers")
	assert.EqualError(t, err, "nats: connection closed")
}
