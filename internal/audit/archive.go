package audit

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"clinicbase.org/internal/ids"
	"clinicbase.org/internal/obs"
)

// Sink is a durable external destination for exported audit rows.
type Sink interface {
	Store(ctx context.Context, key string, body io.Reader) error
}

// Exporter copies aged audit rows to a sink as JSON lines. Export never
// purges anything; rows stay in place after the copy.
type Exporter struct {
	db   *sql.DB
	sink Sink
}

// NewExporter wires an exporter.
func NewExporter(db *sql.DB, sink Sink) *Exporter {
	return &Exporter{db: db, sink: sink}
}

// Export writes every entry created before olderThan to the sink and returns
// the number of rows exported. Exporting zero rows stores nothing.
func (e *Exporter) Export(ctx context.Context, olderThan time.Time) (int, error) {
	rows, err := e.db.QueryContext(ctx, `
		select id, transaction_id, action_type, table_name, row_id, changes,
		       device_id, app_id, user_id, coalesce(ip_address,''), hash,
		       hash_verified, metadata, created_at
		from audit_logs
		where created_at < $1
		order by id
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("select aged entries: %w", err)
	}
	defer rows.Close()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for rows.Next() {
		var entry Entry
		var action string
		var verified sql.NullBool
		if err := rows.Scan(
			&entry.ID, &entry.TransactionID, &action, &entry.TableName, &entry.RowID,
			&entry.Changes, &entry.DeviceID, &entry.AppID, &entry.UserID,
			&entry.IPAddress, &entry.Hash, &verified, &entry.Metadata, &entry.CreatedAt,
		); err != nil {
			return 0, err
		}
		entry.Action = ActionType(action)
		if verified.Valid {
			v := verified.Bool
			entry.HashVerified = &v
		}
		if err := enc.Encode(entry); err != nil {
			return 0, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	key := fmt.Sprintf("audit/%s/audit-%s.jsonl", olderThan.UTC().Format("2006/01/02"), ids.New())
	if err := e.sink.Store(ctx, key, &buf); err != nil {
		return 0, fmt.Errorf("store export %s: %w", key, err)
	}
	obs.Info("audit export stored", map[string]any{"key": key, "rows": count})
	return count, nil
}
