package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

func retryMessage() *coredomain.Message {
	tplID := "tpl-1"
	return &coredomain.Message{
		ID: "m1", BranchID: "b1", TemplateID: &tplID, Status: coredomain.MessageSent,
		TotalRecipients: 3, SuccessfulSent: 1, Failed: 2,
	}
}

func failedRow(id, name string) *coredomain.MessageRecipient {
	return &coredomain.MessageRecipient{
		ID: id, MessageID: "m1", RecipientID: "s-" + id, RecipientType: coredomain.RecipientStudent,
		Name: name, Phone: "9876543210", PhoneValid: true, Status: coredomain.RecipientFailed,
		ErrorMessage: "(#131026) Message undeliverable",
	}
}

func TestRetry_ScopesNewJobToFailedRecipients(t *testing.T) {
	f := setupDispatch()
	f.messages.On("GetByID", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.jobs.On("FindActiveByMessage", mock.Anything, nil, "m1").Return(nil, coredomain.ErrNotFound).Once()
	// B succeeded, so only A and C come back as failed
	f.recipients.On("ListFailed", mock.Anything, nil, "m1", []string(nil)).
		Return([]*coredomain.MessageRecipient{failedRow("A", "Asha"), failedRow("C", "Chitra")}, nil).Once()
	f.jobs.On("LatestByMessage", mock.Anything, nil, "m1").Return(&coredomain.MessageJob{
		ID: "job-0", MessageID: "m1", Status: coredomain.JobCompleted,
		Metadata: coredomain.JobMetadata{TemplateID: "tpl-1", TemplateParameters: map[string]string{"1": "Alice"}},
	}, nil).Once()
	f.expectPreconditions()

	var job *coredomain.MessageJob
	f.jobs.On("Create", mock.Anything, nil, mock.Anything).Run(func(args mock.Arguments) {
		job = args.Get(2).(*coredomain.MessageJob)
	}).Return(nil).Once()
	f.recipients.On("ResetForRetry", mock.Anything, nil, mock.Anything, []string{"A", "C"}).Return(nil).Once()
	f.messages.On("GetForUpdate", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.recipients.On("CountByMessage", mock.Anything, nil, "m1").
		Return(coredomain.StatusCounts{coredomain.RecipientPending: 2, coredomain.RecipientDelivered: 1}, nil).Once()
	f.messages.On("UpdateCounts", mock.Anything, nil, mock.MatchedBy(func(m *coredomain.Message) bool {
		return m.Status == coredomain.MessageSending && m.SuccessfulSent == 1 && m.Failed == 0
	})).Return(nil).Once()

	var payload coredomain.DispatchPayload
	f.trigger.On("Trigger", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		payload = args.Get(1).(coredomain.DispatchPayload)
	}).Return(nil).Once()

	res, err := f.svc.Retry(context.Background(), sender, "m1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RetriedCount)
	assert.False(t, res.NothingToRetry)

	require.NotNil(t, job)
	assert.Equal(t, res.JobID, job.ID)
	assert.Equal(t, coredomain.PriorityRetry, job.Priority)
	assert.Equal(t, 2, job.TotalRecipients)
	assert.True(t, job.Metadata.IsRetry)
	assert.Equal(t, "job-0", job.Metadata.RetryOf)
	assert.Equal(t, []string{"A", "C"}, job.Metadata.RecipientIDs)

	assert.True(t, payload.IsRetry)
	assert.Equal(t, coredomain.PriorityRetry, payload.Priority)
	require.Len(t, payload.Recipients, 2)
	assert.Equal(t, "A", payload.Recipients[0].MessageRecipientID)
	assert.Equal(t, "C", payload.Recipients[1].MessageRecipientID)
	f.recipients.AssertExpectations(t)
	f.messages.AssertExpectations(t)
}

func TestRetry_NothingToRetry(t *testing.T) {
	f := setupDispatch()
	f.messages.On("GetByID", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.jobs.On("FindActiveByMessage", mock.Anything, nil, "m1").Return(nil, coredomain.ErrNotFound).Once()
	f.recipients.On("ListFailed", mock.Anything, nil, "m1", []string{"B"}).Return([]*coredomain.MessageRecipient{}, nil).Once()

	res, err := f.svc.Retry(context.Background(), sender, "m1", []string{"B"})
	require.NoError(t, err)
	assert.True(t, res.NothingToRetry)
	assert.Zero(t, res.RetriedCount)
	assert.Empty(t, res.JobID)
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	f.trigger.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
}

func TestRetry_ActiveJobConflicts(t *testing.T) {
	f := setupDispatch()
	f.messages.On("GetByID", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.jobs.On("FindActiveByMessage", mock.Anything, nil, "m1").
		Return(&coredomain.MessageJob{ID: "job-1", Status: coredomain.JobInProgress}, nil).Once()

	_, err := f.svc.Retry(context.Background(), sender, "m1", nil)
	assert.ErrorIs(t, err, coredomain.ErrActiveJobExists)
	assert.Equal(t, coredomain.KindConflict, coredomain.KindOf(err))
	f.recipients.AssertNotCalled(t, "ListFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetry_TriggerFailureRefailsSubset(t *testing.T) {
	f := setupDispatch()
	f.messages.On("GetByID", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.jobs.On("FindActiveByMessage", mock.Anything, nil, "m1").Return(nil, coredomain.ErrNotFound).Once()
	f.recipients.On("ListFailed", mock.Anything, nil, "m1", []string{"A"}).
		Return([]*coredomain.MessageRecipient{failedRow("A", "Asha")}, nil).Once()
	f.jobs.On("LatestByMessage", mock.Anything, nil, "m1").Return(&coredomain.MessageJob{
		ID: "job-0", Metadata: coredomain.JobMetadata{TemplateID: "tpl-1", TemplateParameters: map[string]string{"name": "Alice"}},
	}, nil).Once()
	f.expectPreconditions()
	f.jobs.On("Create", mock.Anything, nil, mock.Anything).Return(nil).Once()
	f.recipients.On("ResetForRetry", mock.Anything, nil, mock.Anything, []string{"A"}).Return(nil).Once()
	f.messages.On("GetForUpdate", mock.Anything, nil, "m1").Return(retryMessage(), nil).Twice()
	f.recipients.On("CountByMessage", mock.Anything, nil, "m1").
		Return(coredomain.StatusCounts{coredomain.RecipientPending: 1, coredomain.RecipientFailed: 1, coredomain.RecipientSent: 1}, nil).Once()
	f.messages.On("UpdateCounts", mock.Anything, nil, mock.Anything).Return(nil).Once()

	f.trigger.On("Trigger", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	f.recipients.On("MarkFailed", mock.Anything, nil, []string{"A"}, assert.AnError.Error(), fixedNow).Return(nil).Once()
	f.recipients.On("CountByJob", mock.Anything, nil, mock.Anything).
		Return(coredomain.StatusCounts{coredomain.RecipientFailed: 1}, nil).Once()
	f.jobs.On("Update", mock.Anything, nil, mock.MatchedBy(func(j *coredomain.MessageJob) bool {
		return j.Status == coredomain.JobFailed && j.Metadata.IsRetry
	})).Return(nil).Once()
	f.recipients.On("CountByMessage", mock.Anything, nil, "m1").
		Return(coredomain.StatusCounts{coredomain.RecipientFailed: 2, coredomain.RecipientSent: 1}, nil).Once()
	// one recipient succeeded in the first attempt, so the message stays sent
	f.messages.On("UpdateCounts", mock.Anything, nil, mock.MatchedBy(func(m *coredomain.Message) bool {
		return m.Status == coredomain.MessageSent && m.Failed == 2 && m.SuccessfulSent == 1
	})).Return(nil).Once()

	_, err := f.svc.Retry(context.Background(), sender, "m1", []string{"A"})
	assert.ErrorIs(t, err, coredomain.ErrDispatchTrigger)
	f.recipients.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
}

func TestRetry_RowsChangedDuringResetConflicts(t *testing.T) {
	f := setupDispatch()
	f.messages.On("GetByID", mock.Anything, nil, "m1").Return(retryMessage(), nil).Once()
	f.jobs.On("FindActiveByMessage", mock.Anything, nil, "m1").Return(nil, coredomain.ErrNotFound).Once()
	f.recipients.On("ListFailed", mock.Anything, nil, "m1", []string{"A", "C"}).
		Return([]*coredomain.MessageRecipient{failedRow("A", "Asha"), failedRow("C", "Chitra")}, nil).Once()
	f.jobs.On("LatestByMessage", mock.Anything, nil, "m1").Return(&coredomain.MessageJob{
		ID: "job-0", Metadata: coredomain.JobMetadata{TemplateID: "tpl-1", TemplateParameters: map[string]string{"name": "Alice"}},
	}, nil).Once()
	f.expectPreconditions()
	f.jobs.On("Create", mock.Anything, nil, mock.Anything).Return(nil).Once()
	f.recipients.On("ResetForRetry", mock.Anything, nil, mock.Anything, []string{"A", "C"}).
		Return(coredomain.ErrRecipientsChanged).Once()

	_, err := f.svc.Retry(context.Background(), sender, "m1", []string{"A", "C"})
	assert.ErrorIs(t, err, coredomain.ErrRecipientsChanged)
	assert.Equal(t, coredomain.KindConflict, coredomain.KindOf(err))
	f.trigger.AssertNotCalled(t, "Trigger", mock.Anything, mock.Anything)
	f.messages.AssertNotCalled(t, "UpdateCounts", mock.Anything, mock.Anything, mock.Anything)
}
