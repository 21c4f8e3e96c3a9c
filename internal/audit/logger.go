package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicbase.org/internal/ids"
	"clinicbase.org/internal/obs"
)

// Params describes one mutation to record. Changes and Metadata accept any
// JSON-serializable value, or a pre-serialized JSON string.
type Params struct {
	Action    ActionType
	TableName string
	RowID     string
	Changes   any
	Metadata  any

	// TransactionID groups several entries belonging to one logical
	// operation. Empty means the logger generates a fresh one.
	TransactionID string

	// CreatedAt overrides the entry timestamp; zero means now. Batched
	// entries share the batch timestamp unless individually overridden.
	CreatedAt time.Time
}

// Store persists audit entries. Insert is atomic per call.
type Store interface {
	Insert(ctx context.Context, entries []Entry) error
}

// Logger appends immutable, hash-stamped audit entries.
type Logger struct {
	store Store
	now   func() time.Time
}

// NewLogger wires a logger over a store.
func NewLogger(store Store) *Logger {
	return &Logger{store: store, now: time.Now}
}

// LogEvent records a single mutation. The entry is inserted with a null
// hash_verified; the verification job flips it later.
func (l *Logger) LogEvent(ctx context.Context, p Params) (Entry, error) {
	entries, err := l.LogEvents(ctx, []Params{p}, "")
	if err != nil {
		return Entry{}, err
	}
	return entries[0], nil
}

// LogEvents records a batch in one insert. All entries share sharedTxID (or
// one generated id) and one timestamp unless individually overridden.
func (l *Logger) LogEvents(ctx context.Context, params []Params, sharedTxID string) ([]Entry, error) {
	if len(params) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(sharedTxID) == "" {
		sharedTxID = uuid.NewString()
	}
	rc, _ := RequestContextFrom(ctx)
	batchAt := l.now().UTC()

	entries := make([]Entry, 0, len(params))
	for _, p := range params {
		e, err := l.build(p, sharedTxID, batchAt, rc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := l.store.Insert(ctx, entries); err != nil {
		return nil, fmt.Errorf("insert audit entries: %w", err)
	}
	obs.AddAuditEntries(len(entries))
	return entries, nil
}

func (l *Logger) build(p Params, txID string, batchAt time.Time, rc RequestContext) (Entry, error) {
	if p.Action == "" {
		return Entry{}, ErrMissingAction
	}
	if strings.TrimSpace(p.TableName) == "" {
		return Entry{}, ErrMissingTable
	}
	if strings.TrimSpace(p.RowID) == "" {
		return Entry{}, ErrMissingRowID
	}

	changes, err := canonicalJSON(p.Changes)
	if err != nil {
		return Entry{}, fmt.Errorf("serialize changes: %w", err)
	}
	metadata, err := canonicalJSON(p.Metadata)
	if err != nil {
		return Entry{}, fmt.Errorf("serialize metadata: %w", err)
	}

	createdAt := batchAt
	if !p.CreatedAt.IsZero() {
		createdAt = p.CreatedAt.UTC()
	}
	if strings.TrimSpace(p.TransactionID) != "" {
		txID = p.TransactionID
	}

	e := Entry{
		ID:            ids.NewAt(createdAt),
		TransactionID: txID,
		Action:        p.Action,
		TableName:     p.TableName,
		RowID:         p.RowID,
		Changes:       changes,
		DeviceID:      rc.DeviceID,
		AppID:         rc.AppID,
		UserID:        rc.UserID,
		IPAddress:     rc.IPAddress,
		Metadata:      metadata,
		CreatedAt:     createdAt,
	}
	e.Hash = ComputeHash(e)
	return e, nil
}
