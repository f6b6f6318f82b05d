package model

import (
	"math"
	"strconv"
	"time"
)

// TriggerSource identifies which delivery path produced a trigger.
type TriggerSource string

const (
	TriggerSourceRealtime TriggerSource = "realtime"
	TriggerSourcePoll     TriggerSource = "poll"
	TriggerSourceDemo     TriggerSource = "demo"
)

// Trigger is a server-originated event saying a monitored call has ended
// and the responder should be offered a check-in.
type Trigger struct {
	// ID is the notification service's identifier for this trigger.
	ID string `json:"id"`

	// IncidentID links the trigger to the call that produced it.
	IncidentID string `json:"incidentId"`

	// Severity is the normalized risk score in [0,1].
	Severity float64 `json:"severity"`

	// CreatedAt is when the notification service generated the trigger.
	CreatedAt time.Time `json:"createdAt"`

	// IsNew is false once the service considers the trigger delivered.
	IsNew bool `json:"isNew"`

	// Acknowledged is true once the trigger has been consumed.
	Acknowledged bool `json:"acknowledged"`

	// Source is the local delivery path; it is never sent by the server.
	Source TriggerSource `json:"source"`
}

// Actionable reports whether the trigger may still interrupt the user.
func (t Trigger) Actionable() bool {
	return t.IsNew && !t.Acknowledged
}

// Tier returns the severity tier for the trigger.
func (t Trigger) Tier() SeverityTier {
	return TierFor(t.Severity)
}

// SelectActionable picks the trigger to act on from an arrival-ordered set:
// among actionable triggers, the one with the latest CreatedAt. Ties go to
// the trigger seen first.
func SelectActionable(triggers []Trigger) (Trigger, bool) {
	var (
		best  Trigger
		found bool
	)
	for _, t := range triggers {
		if !t.Actionable() {
			continue
		}
		if !found || t.CreatedAt.After(best.CreatedAt) {
			best = t
			found = true
		}
	}
	return best, found
}

// FormatSeverity renders a severity the way navigation parameters carry it:
// the shortest decimal that round-trips, so 0.9 becomes "0.9".
func FormatSeverity(severity float64) string {
	return strconv.FormatFloat(severity, 'f', -1, 64)
}

// NormalizeSeverity maps a raw score into [0,1]. Scores in (1,100] are
// treated as the backend's 1-100 scale.
func NormalizeSeverity(raw float64) float64 {
	switch {
	case math.IsNaN(raw):
		return 0
	case raw > 1 && raw <= 100:
		return raw / 100
	case raw > 100:
		return 1
	case raw < 0:
		return 0
	default:
		return raw
	}
}
