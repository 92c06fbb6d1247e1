package domain

import (
	"strconv"
	"time"

	coredomain "github.com/campusline/comms_services/internal/core_messaging/domain"
)

// DeliveryLogHeader is the column order of a delivery log export.
var DeliveryLogHeader = []string{
	"Name", "Type", "Phone", "Phone Valid", "Status", "Sent At", "Delivered At", "Read At", "Error", "Provider Message ID",
}

// DeliveryLogRow renders one recipient row in DeliveryLogHeader order.
func DeliveryLogRow(r *coredomain.MessageRecipient) []string {
	return []string{
		r.Name,
		string(r.RecipientType),
		r.Phone,
		strconv.FormatBool(r.PhoneValid),
		string(r.Status),
		formatTime(r.SentAt),
		formatTime(r.DeliveredAt),
		formatTime(r.ReadAt),
		r.ErrorMessage,
		r.ProviderMessageID,
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
