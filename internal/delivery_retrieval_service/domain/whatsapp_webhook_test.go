package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

const webhookBody = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "waba-1",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "pn-1"},
        "statuses": [
          {"id": "wamid.A", "status": "delivered", "timestamp": "1767225600", "recipient_id": "919876543210"},
          {"id": "wamid.B", "status": "failed", "timestamp": "1767225660", "recipient_id": "919123456780",
           "errors": [{"code": 131026, "title": "Message undeliverable", "error_data": {"details": "Receiver is incapable of receiving this message"}}]},
          {"id": "wamid.C", "status": "deleted", "timestamp": "1767225700"}
        ]
      }
    }]
  }]
}`

func TestWhatsAppWebhook_StatusUpdates(t *testing.T) {
	var hook WhatsAppWebhook
	require.NoError(t, json.Unmarshal([]byte(webhookBody), &hook))

	updates := hook.StatusUpdates()
	require.Len(t, updates, 2)

	assert.Equal(t, "wamid.A", updates[0].ProviderMessageID)
	assert.Equal(t, coredomain.RecipientDelivered, updates[0].Status)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), updates[0].At)
	assert.Empty(t, updates[0].Error)

	assert.Equal(t, coredomain.RecipientFailed, updates[1].Status)
	assert.Equal(t, "(#131026) Message undeliverable Receiver is incapable of receiving this message", updates[1].Error)
}

func TestWhatsAppWebhook_IgnoresOtherFields(t *testing.T) {
	hook := WhatsAppWebhook{Entry: []WhatsAppEntry{{Changes: []WhatsAppChange{{
		Field: "message_template_status_update",
		Value: WhatsAppChangeValue{Statuses: []WhatsAppStatus{{ID: "wamid.A", Status: "read"}}},
	}}}}}
	assert.Empty(t, hook.StatusUpdates())
}

func TestStatusUpdate_Validate(t *testing.T) {
	assert.NoError(t, StatusUpdate{ProviderMessageID: "wamid.A", Status: coredomain.RecipientRead}.Validate())
	assert.ErrorIs(t, StatusUpdate{Status: coredomain.RecipientRead}.Validate(), coredomain.ErrInvalidStatus)
	assert.ErrorIs(t, StatusUpdate{MessageRecipientID: "r1", Status: coredomain.RecipientPending}.Validate(), coredomain.ErrInvalidStatus)
	assert.ErrorIs(t, StatusUpdate{MessageRecipientID: "r1", Status: "bounced"}.Validate(), coredomain.ErrInvalidStatus)
}

func TestStatusUpdate_DedupeKey(t *testing.T) {
	assert.Equal(t, "delivery:status:wamid.A:read", StatusUpdate{ProviderMessageID: "wamid.A", Status: coredomain.RecipientRead}.DedupeKey())
	assert.Equal(t, "delivery:status:mr:r1:sent", StatusUpdate{MessageRecipientID: "r1", Status: coredomain.RecipientSent}.DedupeKey())
}
