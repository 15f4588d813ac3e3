package models

import "time"

type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// NotificationLogEntry is append-only; MessageSID is nil when delivery failed
// before the provider assigned an id.
type NotificationLogEntry struct {
	ID         int64          `db:"id" json:"id"`
	RequestID  int64          `db:"request_id" json:"request_id"`
	MessageSID *string        `db:"message_sid" json:"message_sid"`
	Status     DeliveryStatus `db:"status" json:"status"`
	Recipient  string         `db:"recipient" json:"recipient"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
