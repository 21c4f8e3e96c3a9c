package audit

import (
	"context"
	"testing"
	"time"

	"clinicbase.org/internal/sync"
)

func TestPushAdapterBuildsEntryFromPushedRecord(t *testing.T) {
	store := &memStore{}
	adapter := NewPushAdapter(store)

	ctx := WithRequestContext(context.Background(), RequestContext{
		UserID:    "u1",
		DeviceID:  "tablet-03",
		AppID:     "clinicbase-mobile",
		IPAddress: "10.0.0.5",
	})
	at := time.Date(2026, 2, 9, 12, 30, 0, 0, time.UTC)

	err := adapter.Upsert(ctx, sync.Record{
		"id":          "01J9ZXPUSHED000000000000001",
		"action_type": "UPDATE",
		"table_name":  "patients",
		"row_id":      "p1",
		"changes":     `{"surname":{"old":"Doe","new":"Smith"}}`,
		"created_at":  at,
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	if len(store.inserts) != 1 || len(store.inserts[0]) != 1 {
		t.Fatalf("expected one inserted entry, got %+v", store.inserts)
	}
	e := store.inserts[0][0]
	if e.ID != "01J9ZXPUSHED000000000000001" {
		t.Fatalf("client id not preserved: %s", e.ID)
	}
	if !e.CreatedAt.Equal(at) {
		t.Fatalf("client timestamp not preserved: %v", e.CreatedAt)
	}
	if e.DeviceID != "tablet-03" || e.UserID != "u1" || e.IPAddress != "10.0.0.5" {
		t.Fatalf("request context not stamped: %+v", e)
	}
	if ComputeHash(e) != e.Hash {
		t.Fatal("stored hash does not round-trip")
	}
}

func TestPushedEntryKeepsTransactionIDThroughIngester(t *testing.T) {
	store := &memStore{}
	catalog, err := sync.NewCatalog(sync.ClinicEntities())
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if err := catalog.Register("audit_logs", NewPushAdapter(store)); err != nil {
		t.Fatalf("register: %v", err)
	}
	ingester := sync.NewIngester(catalog, nil)

	res := ingester.Push(context.Background(), sync.PushRequest{
		"audit_logs": {
			Created: []sync.Record{{
				"id":             "01J9ZXPUSHED00000000000002",
				"transaction_id": "5f0c8a51-1111-2222-3333-444455556666",
				"action_type":    "CREATE",
				"table_name":     "patients",
				"row_id":         "p1",
				"changes":        `{"given_name":"Amina"}`,
			}},
		},
	})
	if res.Applied != 1 || len(res.Errors) != 0 {
		t.Fatalf("push result = %+v", res)
	}
	if len(store.inserts) != 1 || len(store.inserts[0]) != 1 {
		t.Fatalf("expected one inserted entry, got %+v", store.inserts)
	}
	e := store.inserts[0][0]
	if e.TransactionID != "5f0c8a51-1111-2222-3333-444455556666" {
		t.Fatalf("transaction id lost on the push path: %q", e.TransactionID)
	}
}

func TestPushAdapterRejectsIncompleteRecords(t *testing.T) {
	adapter := NewPushAdapter(&memStore{})
	ctx := context.Background()

	cases := []sync.Record{
		{"table_name": "patients", "row_id": "p1"},
		{"action_type": "CREATE", "row_id": "p1"},
		{"action_type": "CREATE", "table_name": "patients"},
	}
	for i, rec := range cases {
		if err := adapter.Upsert(ctx, rec); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestPushAdapterRefusesDeletes(t *testing.T) {
	adapter := NewPushAdapter(&memStore{})
	if err := adapter.Delete(context.Background(), "any"); err != ErrImmutableEntry {
		t.Fatalf("Delete = %v, want ErrImmutableEntry", err)
	}
}

func TestTracerRecordsAppliedBatch(t *testing.T) {
	store := &memStore{}
	tracer := NewTracer(NewLogger(store))

	err := tracer.BatchApplied(context.Background(), "patients",
		[]sync.Record{{"id": "p1", "given_name": "Amina"}},
		[]sync.Record{{"id": "p2", "surname": "Smith"}},
		[]string{"p3"},
	)
	if err != nil {
		t.Fatalf("BatchApplied failed: %v", err)
	}

	if len(store.inserts) != 1 || len(store.inserts[0]) != 3 {
		t.Fatalf("expected one insert of 3 entries, got %+v", store.inserts)
	}
	entries := store.inserts[0]
	if entries[0].Action != ActionCreate || entries[1].Action != ActionUpdate || entries[2].Action != ActionSoftDelete {
		t.Fatalf("actions wrong: %s %s %s", entries[0].Action, entries[1].Action, entries[2].Action)
	}
	for _, e := range entries {
		if e.TransactionID != entries[0].TransactionID {
			t.Fatal("batch entries must share a transaction id")
		}
		if e.TableName != "patients" {
			t.Fatalf("table = %s, want patients", e.TableName)
		}
	}
	if entries[2].RowID != "p3" {
		t.Fatalf("soft delete row id = %s", entries[2].RowID)
	}
}

func TestTracerSkipsAuditLogsTable(t *testing.T) {
	store := &memStore{}
	tracer := NewTracer(NewLogger(store))

	err := tracer.BatchApplied(context.Background(), "audit_logs",
		[]sync.Record{{"id": "a1"}}, nil, nil)
	if err != nil {
		t.Fatalf("BatchApplied failed: %v", err)
	}
	if len(store.inserts) != 0 {
		t.Fatal("pushes into audit_logs must not be traced")
	}
}

func TestTracerEmptyBatchWritesNothing(t *testing.T) {
	store := &memStore{}
	tracer := NewTracer(NewLogger(store))
	if err := tracer.BatchApplied(context.Background(), "patients", nil, nil, nil); err != nil {
		t.Fatalf("BatchApplied failed: %v", err)
	}
	if len(store.inserts) != 0 {
		t.Fatal("empty batch must not insert")
	}
}
