package store

import (
	"context"
	"time"

	"github.com/nhle/responder-checkin/internal/model"
)

// Store defines the persistence interface for the local delivery ledger:
// every trigger received, which one interrupted the user, and the
// notifications shown for it.
type Store interface {
	// === Triggers ===

	RecordTriggers(ctx context.Context, triggers []model.Trigger) error
	GetTrigger(ctx context.Context, id string) (*model.TriggerRecord, error)
	ConsumedIDs(ctx context.Context, ids []string) (map[string]bool, error)
	MarkConsumed(ctx context.Context, t model.Trigger, at time.Time) error
	SetAckStatus(ctx context.Context, id string, status model.AckStatus, detail string) error

	// === Notifications ===

	CreateNotification(ctx context.Context, n model.Notification) error
	GetUnreadNotifications(ctx context.Context) ([]model.Notification, error)
	GetRecentNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}
