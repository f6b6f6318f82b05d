package model

import "strconv"

// Navigation sources carried in a PauseContext.
const (
	NavSourceTrigger = "trigger"
	NavSourceDemo    = "demo"
	NavSourceManual  = "manual"
)

// Defaults applied when navigation arrives without parameters.
const (
	DefaultIncidentID = "demo"
	DefaultSeverity   = "0.82"

	DefaultSeverityValue = 0.82
)

// PauseContext is the navigation payload carried from trigger selection
// through the pause screen into the chat screen. It is never persisted.
type PauseContext struct {
	IncidentID string `json:"incidentId"`
	Severity   string `json:"severity"`
	Source     string `json:"source"`
	TriggerID  string `json:"triggerId,omitempty"`
}

// PauseContextFor builds the navigation payload for a selected trigger.
func PauseContextFor(t Trigger) PauseContext {
	source := NavSourceTrigger
	if t.Source == TriggerSourceDemo {
		source = NavSourceDemo
	}
	return PauseContext{
		IncidentID: t.IncidentID,
		Severity:   FormatSeverity(t.Severity),
		Source:     source,
		TriggerID:  t.ID,
	}
}

// WithDefaults fills in missing incident and severity values.
func (c PauseContext) WithDefaults() PauseContext {
	if c.IncidentID == "" {
		c.IncidentID = DefaultIncidentID
	}
	if c.Severity == "" {
		c.Severity = DefaultSeverity
	}
	return c
}

// SeverityValue parses the carried severity, falling back to the default.
func (c PauseContext) SeverityValue() float64 {
	v, err := strconv.ParseFloat(c.Severity, 64)
	if err != nil {
		v = DefaultSeverityValue
	}
	return NormalizeSeverity(v)
}

// Acknowledgeable reports whether the context refers to a real server trigger.
func (c PauseContext) Acknowledgeable() bool {
	return c.Source == NavSourceTrigger && c.TriggerID != ""
}
