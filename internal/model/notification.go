package model

import "time"

// Notification records that a trigger interrupted the user, with the
// tiered message shown for it.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// TriggerID links this notification to the selected trigger.
	TriggerID string `json:"trigger_id" db:"trigger_id"`

	// IncidentID is the call the trigger was raised for.
	IncidentID string `json:"incident_id" db:"incident_id"`

	// Tier is the severity tier the message was chosen from.
	Tier SeverityTier `json:"tier" db:"tier"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read" db:"read"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
