package domain

import (
	"strconv"
	"strings"
	"time"
)

// WhatsAppWebhook is the envelope of a WhatsApp Business Cloud API webhook call.
type WhatsAppWebhook struct {
	Object string          `json:"object"`
	Entry  []WhatsAppEntry `json:"entry"`
}

type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

type WhatsAppChange struct {
	Field string              `json:"field"`
	Value WhatsAppChangeValue `json:"value"`
}

type WhatsAppChangeValue struct {
	MessagingProduct string `json:"messaging_product"`
	Metadata         struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Statuses []WhatsAppStatus `json:"statuses"`
}

type WhatsAppStatus struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Timestamp   string          `json:"timestamp"`
	RecipientID string          `json:"recipient_id"`
	Errors      []WhatsAppError `json:"errors,omitempty"`
}

type WhatsAppError struct {
	Code      int    `json:"code"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	ErrorData struct {
		Details string `json:"details"`
	} `json:"error_data"`
}

func (e WhatsAppError) String() string {
	parts := []string{"(#" + strconv.Itoa(e.Code) + ")"}
	for _, s := range []string{e.Title, e.ErrorData.Details} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// StatusUpdates flattens the message status changes of the webhook.
// Entries other than message statuses, and statuses without a delivery meaning, are skipped.
func (w WhatsAppWebhook) StatusUpdates() []StatusUpdate {
	var updates []StatusUpdate
	for _, entry := range w.Entry {
		for _, change := range entry.Changes {
			if change.Field != "" && change.Field != "messages" {
				continue
			}
			for _, st := range change.Value.Statuses {
				status, ok := NormalizeProviderStatus(st.Status)
				if !ok || st.ID == "" {
					continue
				}
				u := StatusUpdate{ProviderMessageID: st.ID, Status: status, At: unixSeconds(st.Timestamp)}
				if len(st.Errors) > 0 {
					msgs := make([]string, 0, len(st.Errors))
					for _, e := range st.Errors {
						msgs = append(msgs, e.String())
					}
					u.Error = strings.Join(msgs, "; ")
				}
				updates = append(updates, u)
			}
		}
	}
	return updates
}

func unixSeconds(s string) time.Time {
	sec, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
