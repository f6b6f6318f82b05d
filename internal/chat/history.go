package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/responder-checkin/internal/model"
)

// History is the ordered, append-only message log of one session.
type History struct {
	mu       sync.Mutex
	messages []model.Message
	now      func() time.Time
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{
		messages: make([]model.Message, 0, 20),
		now:      time.Now,
	}
}

// Append adds a message and returns it.
func (h *History) Append(sender model.Sender, text string) model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msg := model.Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		Timestamp: h.now(),
	}
	h.messages = append(h.messages, msg)
	return msg
}

// Messages returns a copy of the log.
func (h *History) Messages() []model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]model.Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.messages)
}
