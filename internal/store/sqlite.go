package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/responder-checkin/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Each connection to :memory: is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	if err := s.db.GetContext(ctx, &v, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// RecordTriggers inserts a batch of received triggers. Triggers already in
// the ledger keep their consumed state; the server flags are refreshed and
// acknowledged never flips back to false.
func (s *SQLiteStore) RecordTriggers(ctx context.Context, triggers []model.Trigger) error {
	if len(triggers) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO triggers (
			id, incident_id, severity, source,
			created_at, received_at, is_new, acknowledged
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			is_new = excluded.is_new,
			acknowledged = MAX(triggers.acknowledged, excluded.acknowledged)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing trigger insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range triggers {
		_, err = stmt.ExecContext(ctx,
			t.ID, t.IncidentID, t.Severity, string(t.Source),
			t.CreatedAt.UTC(), now, boolToInt(t.IsNew), boolToInt(t.Acknowledged),
		)
		if err != nil {
			return fmt.Errorf("recording trigger %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// GetTrigger retrieves a single ledger entry by trigger ID.
func (s *SQLiteStore) GetTrigger(ctx context.Context, id string) (*model.TriggerRecord, error) {
	row := s.db.QueryRowxContext(ctx, `
		SELECT id, incident_id, severity, source, created_at, received_at,
			is_new, acknowledged, consumed, consumed_at, ack_status, ack_error
		FROM triggers WHERE id = ?`, id)

	rec, err := scanTriggerRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting trigger %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting trigger %s: %w", id, err)
	}
	return &rec, nil
}

// ConsumedIDs returns the subset of ids that were consumed in any earlier
// session.
func (s *SQLiteStore) ConsumedIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	consumed := make(map[string]bool)
	if len(ids) == 0 {
		return consumed, nil
	}

	query, args, err := sqlx.In("SELECT id FROM triggers WHERE consumed = 1 AND id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("building consumed query: %w", err)
	}

	var found []string
	if err := s.db.SelectContext(ctx, &found, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying consumed triggers: %w", err)
	}
	for _, id := range found {
		consumed[id] = true
	}
	return consumed, nil
}

// MarkConsumed records that t interrupted the user and creates the tiered
// notification for it in the same transaction.
func (s *SQLiteStore) MarkConsumed(ctx context.Context, t model.Trigger, at time.Time) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ackStatus := model.AckPending
	if t.Source == model.TriggerSourceDemo {
		ackStatus = model.AckSkipped
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO triggers (
			id, incident_id, severity, source, created_at, received_at,
			is_new, acknowledged, consumed, consumed_at, ack_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			consumed = 1,
			consumed_at = excluded.consumed_at,
			ack_status = excluded.ack_status`,
		t.ID, t.IncidentID, t.Severity, string(t.Source), t.CreatedAt.UTC(), at.UTC(),
		boolToInt(t.IsNew), boolToInt(t.Acknowledged), at.UTC(), string(ackStatus),
	)
	if err != nil {
		return fmt.Errorf("marking trigger %s consumed: %w", t.ID, err)
	}

	tier := t.Tier()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO notifications (id, trigger_id, incident_id, tier, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`,
		uuid.New().String(), t.ID, t.IncidentID, string(tier),
		tier.NotificationMessage(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification for trigger %s: %w", t.ID, err)
	}

	return tx.Commit()
}

// SetAckStatus records the outcome of the server acknowledgment.
func (s *SQLiteStore) SetAckStatus(
	ctx context.Context,
	id string,
	status model.AckStatus,
	detail string,
) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE triggers
		SET ack_status = ?, ack_error = ?,
			acknowledged = CASE WHEN ? = 'acknowledged' THEN 1 ELSE acknowledged END
		WHERE id = ?`,
		string(status), detail, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("setting ack status for trigger %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("setting ack status for trigger %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateNotification inserts a new notification record.
func (s *SQLiteStore) CreateNotification(
	ctx context.Context,
	n model.Notification,
) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.Tier == "" {
		n.Tier = model.TierNone
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, trigger_id, incident_id, tier, message, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.TriggerID, n.IncidentID, string(n.Tier), n.Message,
		boolToInt(n.Read), n.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating notification: %w", err)
	}

	return nil
}

// GetUnreadNotifications retrieves all notifications that have not been read,
// ordered by creation time descending.
func (s *SQLiteStore) GetUnreadNotifications(
	ctx context.Context,
) ([]model.Notification, error) {
	var notifications []model.Notification
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT id, trigger_id, incident_id, tier, message, read, created_at
		FROM notifications WHERE read = 0 ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying unread notifications: %w", err)
	}
	return notifications, nil
}

// GetRecentNotifications returns up to limit notifications, newest first.
func (s *SQLiteStore) GetRecentNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	var notifications []model.Notification
	err := s.db.SelectContext(ctx, &notifications, `
		SELECT id, trigger_id, incident_id, tier, message, read, created_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead marks a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(
	ctx context.Context,
	id string,
) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id,
	)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	return nil
}

// scanTriggerRow scans a single trigger row from a sqlx.Row.
func scanTriggerRow(row *sqlx.Row) (model.TriggerRecord, error) {
	var (
		rec          model.TriggerRecord
		source       string
		isNew        int
		acknowledged int
		consumed     int
		consumedAt   sql.NullTime
		ackStatus    string
	)

	err := row.Scan(
		&rec.ID, &rec.IncidentID, &rec.Severity, &source,
		&rec.CreatedAt, &rec.ReceivedAt,
		&isNew, &acknowledged, &consumed, &consumedAt,
		&ackStatus, &rec.AckError,
	)
	if err != nil {
		return model.TriggerRecord{}, err
	}

	rec.Source = model.TriggerSource(source)
	rec.IsNew = isNew != 0
	rec.Acknowledged = acknowledged != 0
	rec.Consumed = consumed != 0
	rec.AckStatus = model.AckStatus(ackStatus)
	if consumedAt.Valid {
		t := consumedAt.Time
		rec.ConsumedAt = &t
	}

	return rec, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
