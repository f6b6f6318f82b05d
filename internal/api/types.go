package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/responder-checkin/internal/model"
)

// ErrorResponse is the error body returned by the service. The backend has
// used all three field names over time.
type ErrorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
	Message      string `json:"message"`
}

func (e ErrorResponse) message() string {
	switch {
	case e.Error != "":
		return e.Error
	case e.ErrorMessage != "":
		return e.ErrorMessage
	default:
		return e.Message
	}
}

// TriggerList is the body of GET /users/{userId}/chat-triggers.
type TriggerList struct {
	Triggers []json.RawMessage `json:"triggers"`
}

// TriggerPayload is a trigger as it appears on the wire, before validation.
type TriggerPayload struct {
	ID            string          `json:"id"`
	IncidentID    string          `json:"incidentId"`
	IncidentIDAlt string          `json:"incident_id"`
	Severity      *float64        `json:"severity"`
	CreatedAt     json.RawMessage `json:"createdAt"`
	IsNew         *bool           `json:"isNew"`
	Acknowledged  bool            `json:"acknowledged"`
}

// DecodeTrigger validates a raw trigger payload and converts it to a
// model.Trigger tagged with the given delivery source. Payloads without an
// id or a parseable createdAt yield ErrMalformedTrigger.
func DecodeTrigger(data []byte, src model.TriggerSource) (model.Trigger, error) {
	var p TriggerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Trigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	return p.toTrigger(src)
}

func (p TriggerPayload) toTrigger(src model.TriggerSource) (model.Trigger, error) {
	if strings.TrimSpace(p.ID) == "" {
		return model.Trigger{}, fmt.Errorf("%w: missing id", ErrMalformedTrigger)
	}

	createdAt, err := parseCreatedAt(p.CreatedAt)
	if err != nil {
		return model.Trigger{}, fmt.Errorf("%w: trigger %s: %v", ErrMalformedTrigger, p.ID, err)
	}

	incident := p.IncidentID
	if incident == "" {
		incident = p.IncidentIDAlt
	}

	severity := model.DefaultSeverityValue
	if p.Severity != nil {
		severity = model.NormalizeSeverity(*p.Severity)
	}

	isNew := true
	if p.IsNew != nil {
		isNew = *p.IsNew
	}

	return model.Trigger{
		ID:           p.ID,
		IncidentID:   incident,
		Severity:     severity,
		CreatedAt:    createdAt,
		IsNew:        isNew,
		Acknowledged: p.Acknowledged,
		Source:       src,
	}, nil
}

// createdAtLayouts are tried in order for string timestamps.
var createdAtLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseCreatedAt accepts an ISO timestamp string or a unix time number
// (seconds, or milliseconds when large enough).
func parseCreatedAt(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, fmt.Errorf("missing createdAt")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		s = strings.TrimSpace(s)
		for _, layout := range createdAtLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognized createdAt %q", s)
	}

	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized createdAt %s", raw)
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec := int64(n)
	nsec := int64((n - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message    string `json:"message"`
	Context    string `json:"context"`
	IncidentID string `json:"incidentId"`
}

// chatResponse is the body returned by POST /chat.
type chatResponse struct {
	Response *string `json:"response"`
}

// crisisSentinel is the response value the service uses to signal
// escalation instead of a display string.
const crisisSentinel = "CRISIS_DETECTED"

// ReplyKind tags a chat reply.
type ReplyKind int

const (
	ReplyMessage ReplyKind = iota
	ReplyCrisis
)

func (k ReplyKind) String() string {
	if k == ReplyCrisis {
		return "crisis"
	}
	return "message"
}

// Reply is a decoded chat response: either a message to display or a
// crisis signal. Text is empty for crisis replies.
type Reply struct {
	Kind ReplyKind
	Text string
}

// decodeReply converts the wire response into a tagged Reply.
func decodeReply(r chatResponse) (Reply, error) {
	if r.Response == nil {
		return Reply{}, fmt.Errorf("%w: missing response field", ErrUnparseableReply)
	}
	text := strings.TrimSpace(*r.Response)
	if text == crisisSentinel {
		return Reply{Kind: ReplyCrisis}, nil
	}
	if text == "" {
		return Reply{}, fmt.Errorf("%w: empty response", ErrUnparseableReply)
	}
	return Reply{Kind: ReplyMessage, Text: text}, nil
}
