package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"clinicbase.org/internal/sync"
)

// EntityAdapter is the SQL implementation of the sync.Adapter contract for
// one entity table: idempotent upsert keyed by id with last-write-wins on
// last_modified, and idempotent soft delete.
type EntityAdapter struct {
	db      *sql.DB
	table   string
	columns []string
}

var _ sync.Adapter = (*EntityAdapter)(nil)

// NewEntityAdapter binds an adapter to the descriptor's table and column set.
func NewEntityAdapter(db *sql.DB, desc sync.EntityDescriptor) *EntityAdapter {
	return &EntityAdapter{
		db:      db,
		table:   desc.ServerTable,
		columns: desc.Columns,
	}
}

// Upsert inserts or updates the record by primary key. Only columns present
// in the record are written; the conflict branch only wins when the incoming
// last_modified is not older than the stored one.
func (a *EntityAdapter) Upsert(ctx context.Context, rec sync.Record) error {
	if _, ok := rec.ID(); !ok {
		return sync.ErrMissingRecordID
	}

	var (
		cols         []string
		placeholders []string
		updates      []string
		args         []any
	)
	for _, col := range a.columns {
		value, present := rec[col]
		if !present {
			continue
		}
		cols = append(cols, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(cols)))
		if col != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
		}
		args = append(args, value)
	}

	query := fmt.Sprintf(
		`insert into %s (%s) values (%s)`,
		a.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
	if len(updates) == 0 {
		query += ` on conflict (id) do nothing`
	} else {
		query += fmt.Sprintf(
			` on conflict (id) do update set %s
			where %s.last_modified is null
			   or excluded.last_modified is null
			   or excluded.last_modified >= %s.last_modified`,
			strings.Join(updates, ", "), a.table, a.table,
		)
	}

	if _, err := a.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert %s: %w", a.table, err)
	}
	return nil
}

// Delete soft-deletes the row. Re-deleting an already deleted (or absent)
// row is a no-op, which keeps whole-batch retries safe.
func (a *EntityAdapter) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`
		update %s
		set is_deleted = true, deleted_at = now(), last_modified = now()
		where id = $1 and is_deleted = false
	`, a.table)
	if _, err := a.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("soft delete %s/%s: %w", a.table, id, err)
	}
	return nil
}
