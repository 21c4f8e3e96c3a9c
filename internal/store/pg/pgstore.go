package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"clinicbase.org/internal/sync"
)

// Store wraps the shared database handle and implements sync.RowSource.
// Table names always come from the catalog, never from request input, so
// interpolating them into queries is safe.
type Store struct {
	db *sql.DB
}

var _ sync.RowSource = (*Store)(nil)

// Open connects to Postgres with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// CreatedSince returns live rows created after the cutoff.
func (s *Store) CreatedSince(ctx context.Context, table string, cutoff time.Time) ([]sync.Record, error) {
	query := fmt.Sprintf(`
		select * from %s
		where server_created_at > $1 and is_deleted = false
		order by server_created_at
	`, table)
	return s.queryRecords(ctx, query, cutoff)
}

// UpdatedSince returns live rows modified after the cutoff but created at or
// before it; rows created after the cutoff already travel in the created set.
func (s *Store) UpdatedSince(ctx context.Context, table string, cutoff time.Time) ([]sync.Record, error) {
	query := fmt.Sprintf(`
		select * from %s
		where last_modified > $1 and server_created_at <= $1 and is_deleted = false
		order by last_modified
	`, table)
	return s.queryRecords(ctx, query, cutoff)
}

// DeletedSince returns ids of rows soft-deleted after the cutoff.
func (s *Store) DeletedSince(ctx context.Context, table string, cutoff time.Time) ([]string, error) {
	query := fmt.Sprintf(`
		select id from %s
		where is_deleted = true and deleted_at > $1
		order by deleted_at
	`, table)
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// queryRecords scans arbitrary rows into generic records.
func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]sync.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []sync.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(sync.Record, len(cols))
		for i, col := range cols {
			switch v := values[i].(type) {
			case []byte:
				rec[col] = string(v)
			default:
				rec[col] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
