package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
	"github.com/campusline/comms_services/internal/platform/authz"
)

func setupSettings() (*SettingsService, *MockCredentialsRepository, *MockActivityLogRepository) {
	creds := new(MockCredentialsRepository)
	activity := new(MockActivityLogRepository)
	svc := NewSettingsService(nil, creds, NewActivityRecorder(nil, activity, discardLogger()), authz.NewClaimsChecker(), discardLogger())
	return svc, creds, activity
}

func TestSetCredentials(t *testing.T) {
	svc, creds, activity := setupSettings()
	in := coredomain.ProviderCredentials{BranchID: " b1 ", PhoneNumberID: "pn-1", BusinessAccountID: "waba-1", AccessToken: "secret"}

	creds.On("Upsert", mock.Anything, nil, mock.MatchedBy(func(c *coredomain.ProviderCredentials) bool {
		return c.BranchID == "b1" && c.APIVersion == defaultAPIVersion && c.AccessToken == "secret"
	})).Return(nil).Once()
	activity.On("Append", mock.Anything, nil, mock.MatchedBy(func(e *coredomain.ActivityLog) bool {
		_, leaked := e.Details["accessToken"]
		return e.EntityType == coredomain.EntityBranch && e.EntityID == "b1" &&
			e.Action == coredomain.ActionSettingsUpdated && !leaked
	})).Return(nil).Once()

	require.NoError(t, svc.SetCredentials(context.Background(), authz.System, in))
	creds.AssertExpectations(t)
	activity.AssertExpectations(t)
}

func TestSetCredentials_Rejected(t *testing.T) {
	tests := []struct {
		name  string
		actor authz.Actor
		in    coredomain.ProviderCredentials
		want  error
	}{
		{
			name:  "missing permission",
			actor: sender,
			in:    *completeCreds("b1"),
			want:  coredomain.ErrForbidden,
		},
		{
			name:  "incomplete",
			actor: authz.System,
			in:    coredomain.ProviderCredentials{BranchID: "b1", PhoneNumberID: "pn-1"},
			want:  coredomain.ErrMissingCredentials,
		},
		{
			name:  "no branch",
			actor: authz.System,
			in:    coredomain.ProviderCredentials{PhoneNumberID: "pn-1", BusinessAccountID: "waba-1", AccessToken: "secret"},
			want:  coredomain.ErrMissingCredentials,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, creds, _ := setupSettings()
			err := svc.SetCredentials(context.Background(), tt.actor, tt.in)
			assert.ErrorIs(t, err, tt.want)
			creds.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}
