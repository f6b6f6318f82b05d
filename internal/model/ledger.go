package model

import "time"

// AckStatus tracks the server acknowledgment of a consumed trigger.
type AckStatus string

const (
	AckNone         AckStatus = "none"
	AckPending      AckStatus = "pending"
	AckAcknowledged AckStatus = "acknowledged"
	AckFailed       AckStatus = "failed"
	AckSkipped      AckStatus = "skipped"
)

// TriggerRecord is a trigger as kept in the local delivery ledger.
type TriggerRecord struct {
	Trigger

	ReceivedAt time.Time
	Consumed   bool
	ConsumedAt *time.Time
	AckStatus  AckStatus
	AckError   string
}
