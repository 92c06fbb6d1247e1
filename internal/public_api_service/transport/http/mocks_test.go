package http_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	drdomain "github.com/campusline/comms_services/internal/delivery_retrieval_service/domain"
	msgapp "github.com/campusline/comms_services/internal/messaging_service/app"
	pbdomain "github.com/campusline/comms_services/internal/phonebook_service/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
	"github.com/campusline/comms_services/internal/public_api_service/middleware"
	httptransport "github.com/campusline/comms_services/internal/public_api_service/transport/http"
)

// --- Mocks ---

type MockResolver struct{ mock.Mock }

func (m *MockResolver) Resolve(ctx context.Context, actor authz.Actor, spec pbdomain.TargetSpec) ([]coredomain.Recipient, error) {
	args := m.Called(ctx, actor, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]coredomain.Recipient), args.Error(1)
}

type MockTemplateManager struct{ mock.Mock }

func (m *MockTemplateManager) template(args mock.Arguments) (*coredomain.Template, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.Template), args.Error(1)
}

func (m *MockTemplateManager) CreateTemplate(ctx context.Context, actor authz.Actor, in msgapp.TemplateInput) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, actor, in))
}

func (m *MockTemplateManager) GetTemplate(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, actor, id))
}

func (m *MockTemplateManager) ListTemplates(ctx context.Context, actor authz.Actor, filter coredomain.TemplateFilter) ([]*coredomain.Template, error) {
	args := m.Called(ctx, actor, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.Template), args.Error(1)
}

func (m *MockTemplateManager) UpdateTemplate(ctx context.Context, actor authz.Actor, id string, in msgapp.TemplateInput, resetApproval bool) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, actor, id, in, resetApproval))
}

func (m *MockTemplateManager) DeleteTemplate(ctx context.Context, actor authz.Actor, id string) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockTemplateManager) ResetApproval(ctx context.Context, actor authz.Actor, id string) (*coredomain.Template, error) {
	return m.template(m.Called(ctx, actor, id))
}

func (m *MockTemplateManager) SubmitForApproval(ctx context.Context, actor authz.Actor, id, branchID string) (string, error) {
	args := m.Called(ctx, actor, id, branchID)
	return args.String(0), args.Error(1)
}

func (m *MockTemplateManager) SyncTemplates(ctx context.Context, actor authz.Actor, branchID, originBranchID string) (*msgapp.SyncResult, error) {
	args := m.Called(ctx, actor, branchID, originBranchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgapp.SyncResult), args.Error(1)
}

type MockDispatcher struct{ mock.Mock }

func (m *MockDispatcher) Send(ctx context.Context, actor authz.Actor, req msgapp.SendRequest) (*msgapp.SendResult, error) {
	args := m.Called(ctx, actor, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgapp.SendResult), args.Error(1)
}

func (m *MockDispatcher) Retry(ctx context.Context, actor authz.Actor, messageID string, recipientIDs []string) (*msgapp.RetryResult, error) {
	args := m.Called(ctx, actor, messageID, recipientIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgapp.RetryResult), args.Error(1)
}

func (m *MockDispatcher) GetMessage(ctx context.Context, actor authz.Actor, messageID string) (*coredomain.Message, error) {
	args := m.Called(ctx, actor, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*coredomain.Message), args.Error(1)
}

func (m *MockDispatcher) ListMessages(ctx context.Context, actor authz.Actor, branchID string, limit, offset int) ([]*coredomain.Message, error) {
	args := m.Called(ctx, actor, branchID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.Message), args.Error(1)
}

func (m *MockDispatcher) ListRecipients(ctx context.Context, actor authz.Actor, messageID string) ([]*coredomain.MessageRecipient, error) {
	args := m.Called(ctx, actor, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.MessageRecipient), args.Error(1)
}

func (m *MockDispatcher) GetJobStatus(ctx context.Context, actor authz.Actor, jobID string) (*msgapp.JobStatus, error) {
	args := m.Called(ctx, actor, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*msgapp.JobStatus), args.Error(1)
}

func (m *MockDispatcher) ListActivity(ctx context.Context, actor authz.Actor, messageID string, limit int) ([]*coredomain.ActivityLog, error) {
	args := m.Called(ctx, actor, messageID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*coredomain.ActivityLog), args.Error(1)
}

type MockExporter struct{ mock.Mock }

func (m *MockExporter) WriteDeliveryLog(ctx context.Context, actor authz.Actor, messageID string, w io.Writer) error {
	args := m.Called(ctx, actor, messageID, w)
	if args.Error(0) == nil {
		_, _ = io.WriteString(w, args.String(1))
	}
	return args.Error(0)
}

type MockJobUpdateApplier struct{ mock.Mock }

func (m *MockJobUpdateApplier) ApplyJobUpdate(ctx context.Context, jobID string, update drdomain.JobUpdate) (*drdomain.JobUpdateResult, error) {
	args := m.Called(ctx, jobID, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*drdomain.JobUpdateResult), args.Error(1)
}

type MockNatsClient struct{ mock.Mock }

func (m *MockNatsClient) Publish(ctx context.Context, subject string, data []byte) error {
	return m.Called(ctx, subject, data).Error(0)
}

func (m *MockNatsClient) SubscribeToSubjectWithQueue(ctx context.Context, subject, queueGroup string, handler nats.MsgHandler) error {
	return m.Called(ctx, subject, queueGroup, handler).Error(0)
}

func (m *MockNatsClient) Close() {
	m.Called()
}

// --- Test Setup ---

const (
	testJWTSecret   = "test-access-secret"
	testWorkerToken = "worker-secret"
	testVerifyToken = "verify-me"
	testAppSecret   = "app-secret"
)

var (
	sender = authz.Actor{UserID: "u1", Permissions: []string{string(authz.PermMessagesSend), string(authz.PermMessagesRead)}}
	admin  = authz.Actor{UserID: "u-admin", IsSuperAdmin: true}
)

type apiFixture struct {
	server     http.Handler
	resolver   *MockResolver
	templates  *MockTemplateManager
	dispatcher *MockDispatcher
	exporter   *MockExporter
	applier    *MockJobUpdateApplier
	nats       *MockNatsClient
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	validate := validator.New()
	hash, err := bcrypt.GenerateFromPassword([]byte(testWorkerToken), bcrypt.MinCost)
	require.NoError(t, err)

	f := &apiFixture{
		resolver:   new(MockResolver),
		templates:  new(MockTemplateManager),
		dispatcher: new(MockDispatcher),
		exporter:   new(MockExporter),
		applier:    new(MockJobUpdateApplier),
		nats:       new(MockNatsClient),
	}
	f.server = httptransport.NewRouter(httptransport.RouterConfig{
		Logger:          logger,
		JWTAccessSecret: []byte(testJWTSecret),
		WorkerTokenHash: string(hash),
		Recipients:      httptransport.NewRecipientHandler(f.resolver, logger, validate),
		Templates:       httptransport.NewTemplateHandler(f.templates, logger, validate),
		Messages:        httptransport.NewMessageHandler(f.dispatcher, f.exporter, logger, validate),
		Webhooks:        httptransport.NewWebhookHandler(f.nats, testVerifyToken, testAppSecret, logger),
		Worker:          httptransport.NewWorkerHandler(f.applier, logger, validate),
	})
	t.Cleanup(func() {
		f.resolver.AssertExpectations(t)
		f.templates.AssertExpectations(t)
		f.dispatcher.AssertExpectations(t)
		f.exporter.AssertExpectations(t)
		f.applier.AssertExpectations(t)
		f.nats.AssertExpectations(t)
	})
	return f
}

// do sends a request as actor. A zero actor sends no Authorization header.
func (f *apiFixture) do(t *testing.T, actor authz.Actor, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor.UserID != "" {
		token, err := middleware.IssueAccessToken([]byte(testJWTSecret), actor, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return f.serve(req)
}

func (f *apiFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.server.ServeHTTP(rr, req)
	return rr
}

func byUser(userID string) any {
	return mock.MatchedBy(func(a authz.Actor) bool { return a.UserID == userID })
}
