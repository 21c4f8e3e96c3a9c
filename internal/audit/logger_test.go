package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memStore struct {
	inserts [][]Entry
	fail    bool
}

func (m *memStore) Insert(ctx context.Context, entries []Entry) error {
	if m.fail {
		return errors.New("insert failed")
	}
	m.inserts = append(m.inserts, entries)
	return nil
}

func TestLogEventInsertsSingleUnverifiedEntry(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store)

	ctx := WithRequestContext(context.Background(), RequestContext{
		UserID:    "u1",
		DeviceID:  "tablet-03",
		AppID:     "clinicbase-mobile",
		IPAddress: "10.0.0.5",
	})

	entry, err := logger.LogEvent(ctx, Params{
		Action:    ActionUpdate,
		TableName: "patients",
		RowID:     "p1",
		Changes:   map[string]any{"surname": map[string]string{"old": "Doe", "new": "Smith"}},
	})
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	if len(store.inserts) != 1 || len(store.inserts[0]) != 1 {
		t.Fatalf("expected exactly one inserted row, got %+v", store.inserts)
	}
	if entry.HashVerified != nil {
		t.Fatal("new entries must be unverified")
	}
	if entry.UserID != "u1" || entry.DeviceID != "tablet-03" || entry.IPAddress != "10.0.0.5" {
		t.Fatalf("request context not applied: %+v", entry)
	}
	if entry.ID == "" || entry.TransactionID == "" {
		t.Fatalf("ids missing: %+v", entry)
	}

	// Recomputing from the stored fields must reproduce the stamp exactly.
	if ComputeHash(entry) != entry.Hash {
		t.Fatal("stored hash does not round-trip")
	}
}

func TestLogEventsShareTransactionAndTimestamp(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store)

	entries, err := logger.LogEvents(context.Background(), []Params{
		{Action: ActionCreate, TableName: "patients", RowID: "p1", Changes: map[string]any{"given_name": "Amina"}},
		{Action: ActionCreate, TableName: "patient_attributes", RowID: "a1"},
	}, "")
	if err != nil {
		t.Fatalf("LogEvents failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].TransactionID != entries[1].TransactionID {
		t.Fatal("batch entries must share a transaction id")
	}
	if !entries[0].CreatedAt.Equal(entries[1].CreatedAt) {
		t.Fatal("batch entries must share a timestamp")
	}
	if entries[0].ID == entries[1].ID {
		t.Fatal("entry ids must be unique within a batch")
	}
	if len(store.inserts) != 1 {
		t.Fatalf("batch must be one insert, got %d", len(store.inserts))
	}
}

func TestLogEventsHonorsOverrides(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store)

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entries, err := logger.LogEvents(context.Background(), []Params{
		{Action: ActionView, TableName: "patients", RowID: "p1", CreatedAt: at, TransactionID: "tx-override"},
		{Action: ActionView, TableName: "patients", RowID: "p2"},
	}, "tx-shared")
	if err != nil {
		t.Fatalf("LogEvents failed: %v", err)
	}
	if entries[0].TransactionID != "tx-override" || entries[1].TransactionID != "tx-shared" {
		t.Fatalf("transaction overrides wrong: %s / %s", entries[0].TransactionID, entries[1].TransactionID)
	}
	if !entries[0].CreatedAt.Equal(at) {
		t.Fatalf("timestamp override ignored: %v", entries[0].CreatedAt)
	}
}

func TestLogEventValidation(t *testing.T) {
	logger := NewLogger(&memStore{})
	ctx := context.Background()

	cases := []Params{
		{TableName: "patients", RowID: "p1"},
		{Action: ActionCreate, RowID: "p1"},
		{Action: ActionCreate, TableName: "patients"},
	}
	for i, p := range cases {
		if _, err := logger.LogEvent(ctx, p); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestLogEventPropagatesStoreFailure(t *testing.T) {
	logger := NewLogger(&memStore{fail: true})
	_, err := logger.LogEvent(context.Background(), Params{
		Action: ActionCreate, TableName: "patients", RowID: "p1",
	})
	if err == nil {
		t.Fatal("expected store failure to propagate")
	}
}
