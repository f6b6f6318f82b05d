package model

// SeverityTier buckets a severity into the notification levels used by the
// call analysis backend.
type SeverityTier string

const (
	TierNone     SeverityTier = "none"
	TierReminder SeverityTier = "reminder"
	TierWarning  SeverityTier = "warning"
	TierCritical SeverityTier = "critical"
)

// Tier thresholds on the normalized [0,1] scale.
const (
	criticalThreshold = 0.80
	warningThreshold  = 0.60
	reminderThreshold = 0.40
)

// TierFor maps a normalized severity to its tier.
func TierFor(severity float64) SeverityTier {
	switch {
	case severity >= criticalThreshold:
		return TierCritical
	case severity >= warningThreshold:
		return TierWarning
	case severity >= reminderThreshold:
		return TierReminder
	default:
		return TierNone
	}
}

// NotificationMessage returns the human-readable notice for a tier.
func (t SeverityTier) NotificationMessage() string {
	switch t {
	case TierCritical:
		return "High-stress incident detected. Please prioritize your wellbeing and consider reaching out for support."
	case TierWarning:
		return "Challenging call detected. Remember that support resources are available if needed."
	case TierReminder:
		return "Check-in reminder: How are you feeling after the recent call?"
	default:
		return "A call has ended. Check in whenever you're ready."
	}
}
