package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// insertColumns is the persisted column order for audit_logs inserts.
// hash_verified is deliberately absent: rows are born unverified.
const insertColumns = `id, transaction_id, action_type, table_name, row_id, changes, device_id, app_id, user_id, ip_address, hash, metadata, created_at`

// PGStore persists audit entries in Postgres. The audit_logs table carries a
// trigger that rejects deletes and any update beyond the one-shot
// hash_verified flip, so immutability holds even against direct access.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Insert writes all entries in a single statement. A conflicting id is
// skipped rather than rewritten, which keeps wholesale push retries
// idempotent without ever touching an existing row.
func (s *PGStore) Insert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var (
		placeholders []string
		args         []any
	)
	for i, e := range entries {
		base := i * 13
		placeholders = append(placeholders, fmt.Sprintf(
			"($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,nullif($%d,''),$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
			base+8, base+9, base+10, base+11, base+12, base+13,
		))
		args = append(args,
			e.ID, e.TransactionID, string(e.Action), e.TableName, e.RowID,
			e.Changes, e.DeviceID, e.AppID, e.UserID, e.IPAddress,
			e.Hash, e.Metadata, e.CreatedAt,
		)
	}

	query := fmt.Sprintf(
		`insert into audit_logs(%s) values %s on conflict (id) do nothing`,
		insertColumns, strings.Join(placeholders, ","),
	)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
