package domain

import "time"

// DeliveryStatus is the terminal outcome of a single send attempt.
type DeliveryStatus string

const (
	DeliveryStatusSent            DeliveryStatus = "SENT"
	DeliveryStatusFailedTemporary DeliveryStatus = "FAILED_TEMPORARY"
	DeliveryStatusFailedPermanent DeliveryStatus = "FAILED_PERMANENT"
)

// DeliveryLog is an append-only audit row written once per send attempt
// that reached persistence.
type DeliveryLog struct {
	ID         int64
	TenantID   int64
	Number     string
	Body       string
	Status     DeliveryStatus
	ExternalID string
	Error      string
	CreatedAt  time.Time
}
