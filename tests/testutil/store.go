package testutil

import (
	"testing"
	"time"

	"github.com/nhle/responder-checkin/internal/model"
	"github.com/nhle/responder-checkin/internal/store"
)

// NewTestStore creates an in-memory ledger with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	return openStore(t, ":memory:")
}

// NewFileStore creates a ledger backed by a file in a temporary directory,
// for tests that reopen the same database.
func NewFileStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	path := t.TempDir() + "/ledger.db"
	return openStore(t, path), path
}

func openStore(t *testing.T, path string) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// Trigger builds an actionable trigger for incident "inc_<id>".
func Trigger(id string, severity float64, createdAt time.Time, src model.TriggerSource) model.Trigger {
	return model.Trigger{
		ID:         id,
		IncidentID: "inc_" + id,
		Severity:   severity,
		CreatedAt:  createdAt,
		IsNew:      true,
		Source:     src,
	}
}
