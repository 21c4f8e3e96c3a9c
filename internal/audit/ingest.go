package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"clinicbase.org/internal/ids"
	"clinicbase.org/internal/sync"
)

// ErrImmutableEntry rejects any attempt to delete a pushed audit entry.
var ErrImmutableEntry = errors.New("audit entries cannot be deleted")

// PushAdapter accepts the audit trail devices accumulate offline. Unlike
// domain adapters it writes through the audit store so every pushed entry is
// hash-stamped with the server-side request context.
//
// The client's entry id is preserved when present so that wholesale batch
// retries stay idempotent; the store skips rows whose id already exists.
type PushAdapter struct {
	store Store
	now   func() time.Time
}

var _ sync.Adapter = (*PushAdapter)(nil)

// NewPushAdapter wires the adapter over an audit store.
func NewPushAdapter(store Store) *PushAdapter {
	return &PushAdapter{store: store, now: time.Now}
}

// Upsert converts one pushed record into an immutable audit entry.
func (a *PushAdapter) Upsert(ctx context.Context, rec sync.Record) error {
	action := stringField(rec, "action_type")
	if action == "" {
		return ErrMissingAction
	}
	table := stringField(rec, "table_name")
	if table == "" {
		return ErrMissingTable
	}
	rowID := stringField(rec, "row_id")
	if rowID == "" {
		return ErrMissingRowID
	}

	changes, err := canonicalJSON(rec["changes"])
	if err != nil {
		return fmt.Errorf("serialize changes: %w", err)
	}
	metadata, err := canonicalJSON(rec["metadata"])
	if err != nil {
		return fmt.Errorf("serialize metadata: %w", err)
	}

	createdAt := a.now().UTC()
	if t, ok := rec["created_at"].(time.Time); ok && !t.IsZero() {
		createdAt = t.UTC()
	}
	id := stringField(rec, "id")
	if id == "" {
		id = ids.NewAt(createdAt)
	}

	rc, _ := RequestContextFrom(ctx)
	e := Entry{
		ID:            id,
		TransactionID: stringField(rec, "transaction_id"),
		Action:        ActionType(action),
		TableName:     table,
		RowID:         rowID,
		Changes:       changes,
		DeviceID:      rc.DeviceID,
		AppID:         rc.AppID,
		UserID:        rc.UserID,
		IPAddress:     rc.IPAddress,
		Metadata:      metadata,
		CreatedAt:     createdAt,
	}
	e.Hash = ComputeHash(e)
	return a.store.Insert(ctx, []Entry{e})
}

// Delete always fails; the audit trail is append-only.
func (a *PushAdapter) Delete(context.Context, string) error {
	return ErrImmutableEntry
}

func stringField(rec sync.Record, field string) string {
	s, _ := rec[field].(string)
	return strings.TrimSpace(s)
}

// Tracer records server-side audit entries for every mutation a push batch
// applied. It implements the ingester's tracing hook.
type Tracer struct {
	logger *Logger
}

// NewTracer wires a tracer over the audit logger.
func NewTracer(logger *Logger) *Tracer {
	return &Tracer{logger: logger}
}

// BatchApplied writes one audit entry per applied record, all sharing one
// transaction id and timestamp. Pushes into audit_logs itself are not traced;
// those rows are already audit entries.
func (t *Tracer) BatchApplied(ctx context.Context, serverTable string, created, updated []sync.Record, deleted []string) error {
	if serverTable == "audit_logs" {
		return nil
	}

	var params []Params
	add := func(action ActionType, rowID string, changes any) {
		params = append(params, Params{
			Action:    action,
			TableName: serverTable,
			RowID:     rowID,
			Changes:   changes,
		})
	}
	for _, rec := range created {
		if id, ok := rec.ID(); ok {
			add(ActionCreate, id, map[string]any(rec))
		}
	}
	for _, rec := range updated {
		if id, ok := rec.ID(); ok {
			add(ActionUpdate, id, map[string]any(rec))
		}
	}
	for _, id := range deleted {
		add(ActionSoftDelete, id, nil)
	}
	if len(params) == 0 {
		return nil
	}

	_, err := t.logger.LogEvents(ctx, params, "")
	return err
}
