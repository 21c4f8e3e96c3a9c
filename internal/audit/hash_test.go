package audit

import (
	"testing"
	"time"
)

func sampleEntry() Entry {
	return Entry{
		ID:            "01J9ZX3TESTENTRY0000000000",
		TransactionID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		Action:        ActionUpdate,
		TableName:     "patients",
		RowID:         "p1",
		Changes:       `{"surname":{"old":"Doe","new":"Smith"}}`,
		DeviceID:      "tablet-03",
		AppID:         "clinicbase-mobile",
		UserID:        "u1",
		IPAddress:     "10.0.0.5",
		CreatedAt:     time.Date(2026, 2, 9, 10, 24, 15, 0, time.UTC),
	}
}

func TestComputeHashIsDeterministic(t *testing.T) {
	e := sampleEntry()
	h1 := ComputeHash(e)
	h2 := ComputeHash(e)
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %s != %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected hex sha256, got %q", h1)
	}
}

func TestComputeHashCoversEveryField(t *testing.T) {
	base := ComputeHash(sampleEntry())

	mutations := map[string]func(*Entry){
		"id":             func(e *Entry) { e.ID = "other" },
		"transaction_id": func(e *Entry) { e.TransactionID = "other" },
		"action":         func(e *Entry) { e.Action = ActionSoftDelete },
		"table_name":     func(e *Entry) { e.TableName = "visits" },
		"row_id":         func(e *Entry) { e.RowID = "p2" },
		"changes":        func(e *Entry) { e.Changes = "{}" },
		"device_id":      func(e *Entry) { e.DeviceID = "tablet-04" },
		"app_id":         func(e *Entry) { e.AppID = "other-app" },
		"user_id":        func(e *Entry) { e.UserID = "u2" },
		"ip_address":     func(e *Entry) { e.IPAddress = "" },
		"created_at":     func(e *Entry) { e.CreatedAt = e.CreatedAt.Add(time.Millisecond) },
	}
	for field, mutate := range mutations {
		e := sampleEntry()
		mutate(&e)
		if ComputeHash(e) == base {
			t.Fatalf("mutating %s did not change the hash", field)
		}
	}
}

func TestComputeHashIgnoresNonHashedFields(t *testing.T) {
	e := sampleEntry()
	base := ComputeHash(e)
	verified := true
	e.HashVerified = &verified
	if ComputeHash(e) != base {
		t.Fatal("hash must not depend on hash_verified")
	}
	e.Metadata = `{"source":"somewhere else"}`
	if ComputeHash(e) != base {
		t.Fatal("hash must not depend on metadata")
	}
}

func TestCanonicalJSON(t *testing.T) {
	got, err := canonicalJSON(map[string]any{"surname": "Smith"})
	if err != nil {
		t.Fatalf("canonicalJSON failed: %v", err)
	}
	if got != `{"surname":"Smith"}` {
		t.Fatalf("unexpected serialization: %s", got)
	}

	// Pre-serialized strings pass through untouched; nil becomes an empty object.
	if got, _ := canonicalJSON(`{"a": 1}`); got != `{"a": 1}` {
		t.Fatalf("string payload rewritten: %s", got)
	}
	if got, _ := canonicalJSON(nil); got != "{}" {
		t.Fatalf("nil payload: %s", got)
	}
}
